// Package server exposes the validator over gRPC and hot-reloads its
// configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/patchguard/internal/alert"
	"github.com/ppiankov/patchguard/internal/audit"
	"github.com/ppiankov/patchguard/internal/config"
	"github.com/ppiankov/patchguard/internal/model"
	"github.com/ppiankov/patchguard/internal/validator"
)

// Config holds gRPC server configuration.
type Config struct {
	Port       int
	ConfigPath string
}

// instance is one loaded validator plus the requests still using it.
type instance struct {
	v        *validator.Validator
	cfg      *config.Config
	inflight sync.WaitGroup
}

// Server implements patchguard.v1.Validator.
type Server struct {
	mu     sync.RWMutex
	cur    *instance
	cfg    Config
	logger *zap.Logger

	// The audit log and alerts live as long as the server and are shared by
	// every reloaded validator, so the hash chain never forks.
	audit     *audit.Log
	auditPath string
	alerts    *alert.Dispatcher

	grpcServer *grpc.Server
}

// New creates a gRPC server with a validator built from cfg.ConfigPath.
func New(cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, logger: logger}

	conf, hash, err := config.LoadConfigWithHash(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if conf.AuditLog != "" {
		l, err := audit.Open(conf.AuditLog)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		s.audit = l
		s.auditPath = conf.AuditLog
	}
	s.alerts = validator.NewAlerts(conf.Alerts, logger)

	inst, err := s.build(conf, hash)
	if err != nil {
		if s.audit != nil {
			s.audit.Close()
		}
		return nil, err
	}
	s.cur = inst
	s.grpcServer = grpc.NewServer()
	RegisterValidatorServer(s.grpcServer, s)
	return s, nil
}

func (s *Server) load() (*instance, error) {
	cfg, hash, err := config.LoadConfigWithHash(s.cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.AuditLog != s.auditPath {
		s.logger.Warn("audit log path changed; restart to apply",
			zap.String("current", s.auditPath), zap.String("configured", cfg.AuditLog))
	}
	return s.build(cfg, hash)
}

func (s *Server) build(cfg *config.Config, hash string) (*instance, error) {
	opts := []validator.Option{validator.WithLogger(s.logger), validator.WithConfigHash(hash)}
	if s.audit != nil {
		opts = append(opts, validator.WithAudit(s.audit))
	}
	if s.alerts != nil {
		opts = append(opts, validator.WithAlerts(s.alerts))
	}
	v, err := validator.New(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build validator: %w", err)
	}
	return &instance{v: v, cfg: cfg}, nil
}

// Serve starts the gRPC server on the configured port. Blocks until stopped.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	return s.grpcServer.Serve(lis)
}

// ServeOn starts the gRPC server on the given listener.
func (s *Server) ServeOn(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// GracefulStop gracefully shuts down the gRPC server.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}

// Close releases the current validator and the audit log.
func (s *Server) Close() error {
	s.mu.Lock()
	inst := s.cur
	s.mu.Unlock()
	inst.inflight.Wait()
	err := inst.v.Close()
	if s.audit != nil {
		err = errors.Join(err, s.audit.Close())
	}
	return err
}

// ConfigHash returns the hash of the configuration currently served.
func (s *Server) ConfigHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.v.ConfigHash()
}

// WatchPaths lists the files whose changes should trigger a reload.
func (s *Server) WatchPaths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path := s.cfg.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	return []string{path, s.cur.cfg.WhitelistPath, s.cur.cfg.PatternsPath}
}

func (s *Server) acquire() *instance {
	s.mu.RLock()
	inst := s.cur
	inst.inflight.Add(1)
	s.mu.RUnlock()
	return inst
}

// Validate implements the Validate RPC. Malformed requests are rejected with
// InvalidArgument; every well-formed request gets a result.
func (s *Server) Validate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ValidateRequest
	if err := DecodeStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}

	inst := s.acquire()
	defer inst.inflight.Done()
	res := inst.v.Validate(ctx, req.Patch, req.Context)

	out, err := EncodeStruct(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

// Explain implements the Explain RPC.
func (s *Server) Explain(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ExplainRequest
	if err := DecodeStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	t := model.ViolationType(req.Type)
	if !t.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "unknown violation type %q", req.Type)
	}

	inst := s.acquire()
	defer inst.inflight.Done()
	out, err := EncodeStruct(inst.v.Library().Content(t))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode content: %v", err)
	}
	return out, nil
}

// Reload rebuilds the validator from the configuration file and swaps it in.
// The previous validator is closed once its in-flight requests finish. On
// error the current validator stays in place. The audit log and alert
// webhooks are fixed at startup.
func (s *Server) Reload() error {
	inst, err := s.load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.cur
	s.cur = inst
	s.mu.Unlock()

	old.inflight.Wait()
	if err := old.v.Close(); err != nil {
		s.logger.Warn("close previous validator", zap.Error(err))
	}
	s.logger.Info("configuration reloaded", zap.String("config_hash", inst.v.ConfigHash()))
	return nil
}
