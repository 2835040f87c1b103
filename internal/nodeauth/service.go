// Package nodeauth issues long-lived node enrollment tokens and exchanges
// them for broker credentials. The enrollment token is the node's only
// secret: its plaintext is returned once at create time, the node presents
// it on every exchange, and only the SHA-256 hash is stored.
package nodeauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/GustavPetterssonBjorklund/Statix/internal/config"
	"github.com/GustavPetterssonBjorklund/Statix/internal/db/bunx"
	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
	"github.com/GustavPetterssonBjorklund/Statix/internal/identity"
	"github.com/GustavPetterssonBjorklund/Statix/internal/logging"
	"github.com/GustavPetterssonBjorklund/Statix/internal/repository"
)

// ErrInvalidNodeToken covers unknown nodes, nodes without an enrollment
// token and mismatched tokens alike.
var ErrInvalidNodeToken = errors.New("invalid node credentials")

// BrokerCredentials are the coordinates an agent uses to reach the broker.
// ExpiresAt is nil while credentials are shared fleet-wide; the nodes table
// reserves columns for per-node rotation.
type BrokerCredentials struct {
	Host      string     `json:"host"`
	Port      int        `json:"port"`
	Username  string     `json:"username"`
	Password  string     `json:"password"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// CreatedNode carries the registration result, including the enrollment
// token plaintext that is returned exactly once.
type CreatedNode struct {
	Node    *models.Node
	Token   string
	EnvFile string
}

// Service registers nodes and runs the token exchange.
type Service struct {
	nodes repository.NodeRepository
	audit repository.AuditLogRepository
	mqtt  config.MQTTConfig
	log   zerolog.Logger
}

// NewService creates the node auth service.
func NewService(nodes repository.NodeRepository, audit repository.AuditLogRepository, mqtt config.MQTTConfig) *Service {
	return &Service{
		nodes: nodes,
		audit: audit,
		mqtt:  mqtt,
		log:   logging.WithComponent("nodeauth"),
	}
}

// MintNodeToken generates a node enrollment bearer: 32 random bytes encoded
// base64url, hashed with SHA-256 for storage.
func MintNodeToken() (plaintext, hash string, err error) {
	return identity.MintToken()
}

// CreateNode registers a node under a fresh ULID and mints its enrollment
// token.
func (s *Service) CreateNode(ctx context.Context, name *string, actorID string) (*CreatedNode, error) {
	plaintext, hash, err := MintNodeToken()
	if err != nil {
		return nil, fmt.Errorf("mint node token: %w", err)
	}

	node := &models.Node{
		ID:            bunx.NewULID(),
		Name:          name,
		AuthTokenHash: &hash,
	}
	if err := s.nodes.Create(ctx, node); err != nil {
		return nil, fmt.Errorf("create node: %w", err)
	}

	s.recordAudit(ctx, actorID, models.AuditNodeCreated, models.JSONMap{"node_id": node.ID})
	return &CreatedNode{
		Node:    node,
		Token:   plaintext,
		EnvFile: s.envFile(node.ID, plaintext),
	}, nil
}

// DeleteNode removes a node; its metrics and inventory cascade away.
func (s *Service) DeleteNode(ctx context.Context, nodeID, actorID string) error {
	if err := s.nodes.Delete(ctx, nodeID); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, models.AuditNodeDeleted, models.JSONMap{"node_id": nodeID})
	return nil
}

// Exchange validates a node's enrollment token and hands back the broker
// coordinates. Unknown node, missing token hash and wrong token all fail the
// same way.
func (s *Service) Exchange(ctx context.Context, nodeID, nodeToken string) (*BrokerCredentials, error) {
	node, err := s.nodes.GetByID(ctx, nodeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidNodeToken
		}
		return nil, fmt.Errorf("exchange node lookup: %w", err)
	}
	if node.AuthTokenHash == nil || *node.AuthTokenHash == "" {
		return nil, ErrInvalidNodeToken
	}

	presented := identity.HashToken(nodeToken)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(*node.AuthTokenHash)) != 1 {
		s.log.Warn().Str("node_id", nodeID).Msg("node token mismatch")
		return nil, ErrInvalidNodeToken
	}

	return &BrokerCredentials{
		Host:     s.mqtt.AdvertiseHost,
		Port:     s.mqtt.AdvertisePort,
		Username: s.mqtt.Username,
		Password: s.mqtt.Password,
	}, nil
}

// envFile renders the agent environment file returned by node create, ready
// to drop next to the agent binary.
func (s *Service) envFile(nodeID, token string) string {
	var b strings.Builder
	b.WriteString("# Statix agent configuration\n")
	fmt.Fprintf(&b, "STATIX_AGENT_NODE_ID=%s\n", nodeID)
	fmt.Fprintf(&b, "STATIX_AGENT_NODE_TOKEN=%s\n", token)
	b.WriteString("STATIX_AGENT_API_URL=http://localhost:8080\n")
	return b.String()
}

func (s *Service) recordAudit(ctx context.Context, actorID, action string, details models.JSONMap) {
	var userID *string
	if actorID != "" {
		userID = &actorID
	}
	entry := &models.AuditLog{
		ID:        bunx.NewUUIDv7(),
		UserID:    userID,
		Action:    action,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("action", action).Msg("record audit event")
	}
}
