package db

import (
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"
)

type Session struct {
	*gocql.Session
}

func NewSession(hosts []string, keyspace string, log *zap.Logger) (*Session, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	// LWTs on conversation_pairs need a serial consistency.
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second

	// Retry policy
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}

	log.Info("connected to scylla", zap.Strings("hosts", hosts), zap.String("keyspace", keyspace))
	return &Session{Session: session}, nil
}
