package grpcstream

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/xela07ax/yardwatch/internal/domain"
	"github.com/xela07ax/yardwatch/internal/engine"
	"github.com/xela07ax/yardwatch/internal/transport"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const TransportName = "grpc"

type Config struct {
	QueueSize  int
	MaxDropped int
}

// Server отдает тот же JSON-конверт снимка, что и WebSocket, но внутри
// google.protobuf.StringValue: одна сериализация на тик для всех транспортов.
type Server struct {
	cfg       Config
	bcast     *engine.Broadcaster
	overrides transport.OverrideApplier
	metrics   *engine.Metrics
	logger    *zap.Logger
}

var _ SnapshotStreamServer = (*Server)(nil)

func NewServer(cfg Config, bcast *engine.Broadcaster, overrides transport.OverrideApplier, metrics *engine.Metrics, logger *zap.Logger) *Server {
	if metrics == nil {
		metrics = engine.NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, bcast: bcast, overrides: overrides, metrics: metrics, logger: logger.Named("grpc")}
}

type streamSubscriber struct {
	id    string
	queue *engine.SubscriberQueue
}

func (s *streamSubscriber) ID() string                   { return s.id }
func (s *streamSubscriber) Transport() string            { return TransportName }
func (s *streamSubscriber) Deliver(payload []byte) error { return s.queue.Offer(payload) }
func (s *streamSubscriber) Close()                       { s.queue.Close() }

func (s *Server) Subscribe(_ *emptypb.Empty, stream SnapshotStream_SubscribeServer) error {
	sub := &streamSubscriber{
		id: uuid.NewString(),
		queue: engine.NewSubscriberQueue(s.cfg.QueueSize, s.cfg.MaxDropped, func() {
			s.metrics.DroppedPayloads.WithLabelValues(TransportName).Inc()
		}),
	}
	s.bcast.Register(sub)
	defer func() {
		s.bcast.Unregister(sub.id)
		sub.queue.Close()
	}()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.queue.Done():
			return status.Error(codes.Unavailable, "subscriber evicted")
		case payload := <-sub.queue.C():
			if err := stream.Send(wrapperspb.String(string(payload))); err != nil {
				s.logger.Info("stream send failed", zap.String("subscriber", sub.id), zap.Error(err))
				return err
			}
		}
	}
}

// SetStatus принимает {"track_id": 7, "status": "manutencao"};
// пустой статус или "clear" снимает ручной статус.
func (s *Server) SetStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.overrides == nil {
		return nil, status.Error(codes.Unimplemented, "overrides are disabled")
	}
	cmd, err := commandFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	by := "grpc"
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		by = "grpc:" + p.Addr.String()
	}
	if err := transport.Execute(ctx, s.overrides, cmd, by); err != nil {
		if errors.Is(err, domain.ErrInvalidStatus) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}

	return structpb.NewStruct(map[string]interface{}{
		"ok":       true,
		"type":     cmd.Type,
		"track_id": float64(cmd.TrackID),
		"status":   cmd.Status,
	})
}

const maxExactID = 1 << 53

func commandFromStruct(in *structpb.Struct) (transport.Command, error) {
	fields := in.GetFields()
	idVal, ok := fields["track_id"]
	if !ok {
		return transport.Command{}, errors.New("track_id is required")
	}
	num, ok := idVal.GetKind().(*structpb.Value_NumberValue)
	if !ok || num.NumberValue != math.Trunc(num.NumberValue) {
		return transport.Command{}, fmt.Errorf("track_id must be an integer")
	}
	// за пределами 2^53 double теряет точность, а int64() не определен
	if math.Abs(num.NumberValue) > maxExactID {
		return transport.Command{}, fmt.Errorf("track_id %g is out of range", num.NumberValue)
	}

	cmd := transport.Command{Type: transport.CommandClearStatus, TrackID: int64(num.NumberValue)}
	raw := fields["status"].GetStringValue()
	if raw == "" || raw == "clear" {
		return cmd, nil
	}
	st, err := domain.ParseOverride(raw)
	if err != nil {
		return transport.Command{}, err
	}
	cmd.Type, cmd.Status = transport.CommandSetStatus, string(st)
	return cmd, nil
}
