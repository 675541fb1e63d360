package main

import (
	"database/sql"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	redisadapter "github.com/hakim-ai/identity-gateway/internal/adapters/redis"
	"github.com/hakim-ai/identity-gateway/internal/bootstrap"
	"github.com/hakim-ai/identity-gateway/internal/data"
	"github.com/hakim-ai/identity-gateway/internal/service"
)

// adminInfra holds the services an operator command acts through.
type adminInfra struct {
	db       *sql.DB
	rdb      goredis.UniversalClient
	Identity *service.IdentityService
	Sessions *service.SessionManager
}

// openInfra connects Postgres and, when wantRedis is set, Redis so that decisions which
// revoke access also drop live sessions.
func openInfra(cmdCtx *commandContext, wantRedis bool) (*adminInfra, error) {
	cfg := &cmdCtx.Config
	enc, err := bootstrap.CreateEncryptor(cfg.Auth.PayloadEncryptionKey, cfg.IsDev, cmdCtx.Logger)
	if err != nil {
		return nil, err
	}

	db, err := bootstrap.ConnectDB(cmdCtx.Ctx, cfg.Postgres, cmdCtx.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	infra := &adminInfra{db: db}
	accounts := data.NewAccountRepo(db, enc)

	if wantRedis {
		infra.rdb, err = bootstrap.ConnectRedis(cmdCtx.Ctx, cfg.Redis, cmdCtx.Logger)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("connect redis: %w", err), infra.Close())
		}
		infra.Sessions = service.NewSessionManager(service.SessionManagerOptions{
			Store:    redisadapter.NewSessionStore(infra.rdb),
			Accounts: accounts,
			Logger:   cmdCtx.Logger,
		})
	}

	infra.Identity = service.NewIdentityService(service.IdentityServiceOptions{
		Accounts: accounts,
		Roles:    bootstrap.BuildRoleDeriver(cfg.Auth, cmdCtx.Logger),
		Sessions: infra.Sessions,
		Logger:   cmdCtx.Logger,
	})
	return infra, nil
}

func (i *adminInfra) Close() error {
	var closeErr error
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close db: %w", err))
		}
	}
	if i.rdb != nil {
		if err := i.rdb.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close redis: %w", err))
		}
	}
	return closeErr
}
