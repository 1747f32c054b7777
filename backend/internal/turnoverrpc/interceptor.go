package turnoverrpc

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRequest checks a decoded request's struct tags
func ValidateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

// UnaryValidator rejects requests whose struct tags do not validate
func UnaryValidator() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if err := ValidateRequest(req); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// UnaryLogger logs every call with its status code and duration
func UnaryLogger(log *zap.SugaredLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		fields := []interface{}{
			"method", info.FullMethod,
			"code", code.String(),
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
		}
		switch code {
		case codes.OK:
			log.Infow("grpc", fields...)
		case codes.Internal, codes.Unknown, codes.Unavailable, codes.DataLoss:
			log.Errorw("grpc", append(fields, "error", err)...)
		default:
			log.Warnw("grpc", append(fields, "error", err)...)
		}
		return resp, err
	}
}
