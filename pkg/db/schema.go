package db

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"
)

var keyspaceName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,47}$`)

// Tables lists the chat keyspace tables in creation order.
var Tables = []struct {
	Name string
	DDL  string
}{
	{"users", `CREATE TABLE IF NOT EXISTS users (
		id text PRIMARY KEY,
		role text,
		display_name text
	)`},
	{"conversations", `CREATE TABLE IF NOT EXISTS conversations (
		id bigint PRIMARY KEY,
		participant_a text,
		participant_b text,
		created_at timestamp,
		last_message_at timestamp,
		last_message_id bigint
	)`},
	{"conversation_pairs", `CREATE TABLE IF NOT EXISTS conversation_pairs (
		pair_key text PRIMARY KEY,
		conversation_id bigint
	)`},
	{"user_conversations", `CREATE TABLE IF NOT EXISTS user_conversations (
		user_id text,
		other_user_id text,
		conversation_id bigint,
		last_updated timestamp,
		PRIMARY KEY (user_id, other_user_id)
	)`},
	{"conversation_counters", `CREATE TABLE IF NOT EXISTS conversation_counters (
		user_id text,
		other_user_id text,
		unread_count counter,
		PRIMARY KEY (user_id, other_user_id)
	)`},
	{"messages", `CREATE TABLE IF NOT EXISTS messages (
		conversation_id bigint,
		id bigint,
		sender_id text,
		content text,
		is_read boolean,
		read_at timestamp,
		created_at timestamp,
		deleted_at timestamp,
		PRIMARY KEY (conversation_id, id)
	) WITH CLUSTERING ORDER BY (id ASC)`},
	{"messages_by_id", `CREATE TABLE IF NOT EXISTS messages_by_id (
		id bigint PRIMARY KEY,
		conversation_id bigint
	)`},
	{"notifications", `CREATE TABLE IF NOT EXISTS notifications (
		user_id text,
		id bigint,
		type text,
		title text,
		content text,
		action_url text,
		is_read boolean,
		read_at timestamp,
		created_at timestamp,
		PRIMARY KEY (user_id, id)
	) WITH CLUSTERING ORDER BY (id DESC)`},
}

// EnsureKeyspace creates keyspace through a session bound to the system
// keyspace.
func EnsureKeyspace(sys *Session, keyspace string) error {
	if !keyspaceName.MatchString(keyspace) {
		return fmt.Errorf("invalid keyspace name %q", keyspace)
	}
	stmt := fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`, keyspace)
	return sys.Query(stmt).Exec()
}

// EnsureSchema creates every table that does not exist yet.
func EnsureSchema(session *Session, log *zap.Logger) error {
	for _, t := range Tables {
		if err := session.Query(t.DDL).Exec(); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
		log.Info("table ready", zap.String("table", t.Name))
	}
	return nil
}

// DropSchema drops every chat table.
func DropSchema(session *Session, log *zap.Logger) error {
	for i := len(Tables) - 1; i >= 0; i-- {
		name := Tables[i].Name
		if err := session.Query("DROP TABLE IF EXISTS " + name).Exec(); err != nil {
			return fmt.Errorf("drop table %s: %w", name, err)
		}
		log.Info("table dropped", zap.String("table", name))
	}
	return nil
}
