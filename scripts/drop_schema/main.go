package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/mahaj/careerchat/pkg/db"
	"go.uber.org/zap"
)

func main() {
	hosts := flag.String("hosts", envOr("SCYLLA_HOSTS", "localhost:9042"), "comma separated scylla hosts")
	keyspace := flag.String("keyspace", envOr("SCYLLA_KEYSPACE", "chat"), "keyspace holding the chat tables")
	flag.Parse()

	logg, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}
	defer logg.Sync()

	session, err := db.NewSession(strings.Split(*hosts, ","), *keyspace, logg)
	if err != nil {
		logg.Fatal("failed to connect to scylla", zap.Error(err))
	}
	defer session.Close()

	logg.Info("dropping chat tables", zap.String("keyspace", *keyspace))
	if err := db.DropSchema(session, logg); err != nil {
		logg.Fatal("failed to drop schema", zap.Error(err))
	}
	logg.Info("tables dropped successfully")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
