package store

import (
	"fmt"

	"github.com/mahaj/careerchat/pkg/config"
	"github.com/mahaj/careerchat/pkg/db"
	"go.uber.org/zap"
)

// Open returns the store selected by cfg.Store.Driver. With migrate set, the
// Scylla keyspace and tables are created when missing.
func Open(cfg *config.Config, migrate bool, log *zap.Logger) (Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		log.Warn("using in-memory store, data is lost on exit")
		return NewMemory(), nil
	case "scylla":
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if migrate {
		sys, err := db.NewSession(cfg.Store.ScyllaHosts, "system", log)
		if err != nil {
			return nil, fmt.Errorf("connect to system keyspace: %w", err)
		}
		err = db.EnsureKeyspace(sys, cfg.Store.Keyspace)
		sys.Close()
		if err != nil {
			return nil, err
		}
	}

	session, err := db.NewSession(cfg.Store.ScyllaHosts, cfg.Store.Keyspace, log)
	if err != nil {
		return nil, fmt.Errorf("connect to keyspace %s: %w", cfg.Store.Keyspace, err)
	}
	if migrate {
		if err := db.EnsureSchema(session, log); err != nil {
			session.Close()
			return nil, err
		}
	}
	return NewScylla(session, log), nil
}
