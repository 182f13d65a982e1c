package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/mahaj/careerchat/pkg/db"
	"github.com/mahaj/careerchat/pkg/model"
	"github.com/mahaj/careerchat/pkg/store"
	"go.uber.org/zap"
)

func main() {
	hosts := flag.String("hosts", envOr("SCYLLA_HOSTS", "localhost:9042"), "comma separated scylla hosts")
	keyspace := flag.String("keyspace", envOr("SCYLLA_KEYSPACE", "chat"), "keyspace to create")
	users := flag.String("users", "", "comma separated user ids to seed, each optionally suffixed with :role (default candidate)")
	flag.Parse()

	logg, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}
	defer logg.Sync()
	scyllaHosts := strings.Split(*hosts, ",")

	sys, err := db.NewSession(scyllaHosts, "system", logg)
	if err != nil {
		logg.Fatal("failed to connect to system keyspace", zap.Error(err))
	}
	if err := db.EnsureKeyspace(sys, *keyspace); err != nil {
		logg.Fatal("failed to create keyspace", zap.Error(err))
	}
	sys.Close()

	session, err := db.NewSession(scyllaHosts, *keyspace, logg)
	if err != nil {
		logg.Fatal("failed to connect", zap.Error(err))
	}
	defer session.Close()

	if err := db.EnsureSchema(session, logg); err != nil {
		logg.Fatal("failed to create schema", zap.Error(err))
	}

	st := store.NewScylla(session, logg)
	for _, entry := range strings.Split(*users, ",") {
		id, role, _ := strings.Cut(strings.TrimSpace(entry), ":")
		if id == "" {
			continue
		}
		if role == "" {
			role = string(model.RoleCandidate)
		}
		if err := st.SaveUser(context.Background(), model.Identity{ID: id, Role: model.Role(role)}); err != nil {
			logg.Fatal("failed to seed user", zap.String("user_id", id), zap.Error(err))
		}
		logg.Info("user seeded", zap.String("user_id", id), zap.String("role", role))
	}
	logg.Info("schema created successfully", zap.String("keyspace", *keyspace))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
