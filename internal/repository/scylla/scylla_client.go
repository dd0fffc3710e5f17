package scylla

import (
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"lms-auth/internal/config"
	"lms-auth/internal/util"
)

// PreparedStatements holds the statements used by the credential repository.
type PreparedStatements struct {
	CreateCredential         *gocql.Query
	GetCredentialByEmail     *gocql.Query
	UpdateCredentialPassword *gocql.Query
	MarkEmailVerified        *gocql.Query
	UpdateLastLogin          *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.Mutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateCredential = s.Session.Query(`
        INSERT INTO credentials (
            email_bucket, email, user_id, password_hash, salt, algorithm,
            email_verified, created_at, updated_at, last_login_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetCredentialByEmail = s.Session.Query(`
        SELECT email_bucket, email, user_id, password_hash, salt, algorithm,
            email_verified, created_at, updated_at, last_login_at
        FROM credentials WHERE email_bucket = ? AND email = ?`)

	prepared.UpdateCredentialPassword = s.Session.Query(`
        UPDATE credentials SET password_hash = ?, salt = ?, updated_at = ?
        WHERE email_bucket = ? AND email = ?`)

	prepared.MarkEmailVerified = s.Session.Query(`
        UPDATE credentials SET email_verified = ?, updated_at = ?
        WHERE email_bucket = ? AND email = ?`)

	prepared.UpdateLastLogin = s.Session.Query(`
        UPDATE credentials SET last_login_at = ?
        WHERE email_bucket = ? AND email = ?`)

	s.Prepared = prepared
	s.isPrepared = true
	return nil
}

// ExecuteWithRetry executes a mutation, retrying transient failures.
func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, retries int) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if err = query.Exec(); err == nil {
			return nil
		}
		if attempt < retries {
			time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
		}
	}
	return err
}

// ScanWithRetry scans a single-row query into dest, retrying transient
// failures. gocql.ErrNotFound is returned immediately.
func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = query.Scan(dest...)
		if err == nil || err == gocql.ErrNotFound {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
	return err
}

func (s *ScyllaClient) HealthCheck() error {
	var release string
	if err := s.Session.Query(`SELECT release_version FROM system.local`).Scan(&release); err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
	}
}
