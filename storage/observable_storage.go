package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/hatlonely/jsondb/cfg"
	"github.com/hatlonely/jsondb/log"
	"github.com/hatlonely/jsondb/ref"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ObservableStorageOptions struct {
	// Storage 被包装的底层存储配置
	Storage *ref.TypeOptions `cfg:"storage" validate:"required"`

	// Logger 日志记录器配置，为空使用默认日志器
	Logger *ref.TypeOptions `cfg:"logger"`

	EnableMetrics bool `cfg:"enableMetrics"`
	EnableLogging bool `cfg:"enableLogging"`
	EnableTracing bool `cfg:"enableTracing"`

	// Name 组件名称标识，用于所有观测维度
	// - Metrics: 作为指标名前缀
	// - Logging: 作为 component 字段值
	// - Tracing: 作为 span 的 component 属性
	Name string `cfg:"name" def:"jsondb_storage" validate:"required"`
}

// ObservableMetrics 封装 prometheus 指标
type ObservableMetrics struct {
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	activeOperations  *prometheus.GaugeVec
	bytesCounter      *prometheus.CounterVec
}

// register 注册到默认 registry，同名指标已经存在时复用已有的
func register[T prometheus.Collector](c T) T {
	err := prometheus.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	return c
}

// NewObservableMetrics 创建指标收集器
func NewObservableMetrics(name string) *ObservableMetrics {
	return &ObservableMetrics{
		operationCounter: register(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"operation", "status"},
		)),
		operationDuration: register(prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_operation_duration_seconds",
				Help:    "Duration of storage operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation"},
		)),
		activeOperations: register(prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: name + "_active_operations",
				Help: "Number of active storage operations",
			},
			[]string{"operation"},
		)),
		bytesCounter: register(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_bytes_total",
				Help: "Total bytes read from and written to storage",
			},
			[]string{"direction"},
		)),
	}
}

// ObservableStorage 装饰器，为任何 Storage 添加指标、日志和追踪
type ObservableStorage struct {
	storage Storage

	logger        log.Logger
	metrics       *ObservableMetrics
	tracer        trace.Tracer
	name          string
	enableMetrics bool
	enableLogging bool
	enableTracing bool
}

func NewObservableStorageWithOptions(options *ObservableStorageOptions) (*ObservableStorage, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.SetDefaults failed")
	}
	if err := cfg.Validate(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.Validate failed")
	}

	storage, err := NewStorageWithOptions(options.Storage)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create underlying storage")
	}

	obs := &ObservableStorage{
		storage:       storage,
		name:          options.Name,
		enableMetrics: options.EnableMetrics,
		enableLogging: options.EnableLogging,
		enableTracing: options.EnableTracing,
	}

	if options.EnableLogging {
		l, err := log.NewLoggerWithOptions(options.Logger)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create logger")
		}
		obs.logger = l.WithGroup("observableStorage")
	}
	if options.EnableMetrics {
		obs.metrics = NewObservableMetrics(options.Name)
	}
	if options.EnableTracing {
		obs.tracer = otel.Tracer(fmt.Sprintf("storage.%s", options.Name))
	}

	return obs, nil
}

// Unwrap 底层存储
func (obs *ObservableStorage) Unwrap() Storage {
	return obs.storage
}

// observeOperation 统一的操作观测逻辑
func (obs *ObservableStorage) observeOperation(ctx context.Context, operation string, key string, fn func(context.Context) error) error {
	start := time.Now()

	var span trace.Span
	if obs.enableTracing && obs.tracer != nil {
		ctx, span = obs.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
			trace.WithAttributes(
				attribute.String("component", obs.name),
				attribute.String("operation", operation),
				attribute.String("key", key),
			),
		)
		defer span.End()
	}

	if obs.enableMetrics && obs.metrics != nil {
		obs.metrics.activeOperations.WithLabelValues(operation).Inc()
		defer obs.metrics.activeOperations.WithLabelValues(operation).Dec()
	}

	err := fn(ctx)
	duration := time.Since(start)

	if span != nil {
		span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if obs.enableMetrics && obs.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		obs.metrics.operationCounter.WithLabelValues(operation, status).Inc()
		obs.metrics.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}

	if obs.enableLogging && obs.logger != nil {
		if err != nil {
			obs.logger.ErrorContext(ctx, "storage operation failed",
				"component", obs.name,
				"operation", operation,
				"key", key,
				"duration_ms", duration.Milliseconds(),
				"error", err.Error(),
			)
		} else {
			obs.logger.InfoContext(ctx, "storage operation completed",
				"component", obs.name,
				"operation", operation,
				"key", key,
				"duration_ms", duration.Milliseconds(),
			)
		}
	}

	return err
}

func (obs *ObservableStorage) countBytes(direction string, n int) {
	if obs.enableMetrics && obs.metrics != nil {
		obs.metrics.bytesCounter.WithLabelValues(direction).Add(float64(n))
	}
}

func (obs *ObservableStorage) Get(ctx context.Context, key string) ([]byte, error) {
	var buf []byte
	err := obs.observeOperation(ctx, "get", key, func(ctx context.Context) error {
		var err error
		buf, err = obs.storage.Get(ctx, key)
		return err
	})
	obs.countBytes("read", len(buf))
	return buf, err
}

func (obs *ObservableStorage) Put(ctx context.Context, key string, data []byte) error {
	err := obs.observeOperation(ctx, "put", key, func(ctx context.Context) error {
		return obs.storage.Put(ctx, key, data)
	})
	if err == nil {
		obs.countBytes("write", len(data))
	}
	return err
}

func (obs *ObservableStorage) Del(ctx context.Context, key string) error {
	return obs.observeOperation(ctx, "del", key, func(ctx context.Context) error {
		return obs.storage.Del(ctx, key)
	})
}

func (obs *ObservableStorage) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := obs.observeOperation(ctx, "exists", key, func(ctx context.Context) error {
		var err error
		ok, err = obs.storage.Exists(ctx, key)
		return err
	})
	return ok, err
}

func (obs *ObservableStorage) Stat(ctx context.Context, key string) (*Info, error) {
	var info *Info
	err := obs.observeOperation(ctx, "stat", key, func(ctx context.Context) error {
		var err error
		info, err = obs.storage.Stat(ctx, key)
		return err
	})
	return info, err
}

func (obs *ObservableStorage) Rename(ctx context.Context, from string, to string) error {
	return obs.observeOperation(ctx, "rename", from+" -> "+to, func(ctx context.Context) error {
		return obs.storage.Rename(ctx, from, to)
	})
}

func (obs *ObservableStorage) Mkdir(ctx context.Context, dir string) error {
	return obs.observeOperation(ctx, "mkdir", dir, func(ctx context.Context) error {
		return obs.storage.Mkdir(ctx, dir)
	})
}

func (obs *ObservableStorage) IsDir(ctx context.Context, dir string) (bool, error) {
	var ok bool
	err := obs.observeOperation(ctx, "isDir", dir, func(ctx context.Context) error {
		var err error
		ok, err = obs.storage.IsDir(ctx, dir)
		return err
	})
	return ok, err
}

func (obs *ObservableStorage) List(ctx context.Context, dir string) ([]*Info, error) {
	var infos []*Info
	err := obs.observeOperation(ctx, "list", dir, func(ctx context.Context) error {
		var err error
		infos, err = obs.storage.List(ctx, dir)
		return err
	})
	return infos, err
}

func (obs *ObservableStorage) Watch(ctx context.Context, keys []string, fn func(key string)) error {
	watcher, ok := obs.storage.(Watcher)
	if !ok {
		return errors.Wrapf(ErrNotSupported, "%T cannot watch", obs.storage)
	}
	return watcher.Watch(ctx, keys, fn)
}

func (obs *ObservableStorage) Close() error {
	return obs.storage.Close()
}
