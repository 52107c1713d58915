package storage

import (
	"context"
	"strings"

	"github.com/hatlonely/jsondb/cfg"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type GormStorageOptions struct {
	// Driver sqlite 或 mysql
	Driver string `cfg:"driver" def:"sqlite" validate:"oneof=sqlite mysql"`
	// DSN sqlite 为文件路径（:memory: 表示内存库），mysql 为 user:pass@tcp(host:port)/db?parseTime=True
	DSN string `cfg:"dsn" validate:"required"`
	// Table 保存文件的表名
	Table    string `cfg:"table" def:"jsondb_objects"`
	MaxConns int    `cfg:"maxConns" def:"10"`
	MaxIdle  int    `cfg:"maxIdle" def:"5"`
	// LogLevel gorm 日志级别 silent/error/warn/info
	LogLevel string `cfg:"logLevel" def:"silent" validate:"oneof=silent error warn info"`
}

// GormStorage 每个文件是关系数据库表中的一行
type GormStorage struct {
	*KVStorage
}

type gormObject struct {
	ObjKey string `gorm:"column:obj_key;primaryKey;size:512"`
	ObjVal []byte `gorm:"column:obj_val"`
}

func NewGormStorageWithOptions(options *GormStorageOptions) (*GormStorage, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.SetDefaults failed")
	}
	if err := cfg.Validate(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.Validate failed")
	}

	var dialector gorm.Dialector
	switch options.Driver {
	case "mysql":
		dialector = mysql.Open(options.DSN)
	default:
		dialector = sqlite.Open(options.DSN)
	}

	logLevel := map[string]gormlogger.LogLevel{
		"silent": gormlogger.Silent,
		"error":  gormlogger.Error,
		"warn":   gormlogger.Warn,
		"info":   gormlogger.Info,
	}[options.LogLevel]

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(logLevel)})
	if err != nil {
		return nil, errors.Wrapf(err, "gorm.Open failed. driver: %s", options.Driver)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "gorm.DB failed")
	}
	sqlDB.SetMaxOpenConns(options.MaxConns)
	sqlDB.SetMaxIdleConns(options.MaxIdle)
	// 内存库每个连接都是一个独立的数据库
	if options.Driver == "sqlite" && strings.Contains(options.DSN, ":memory:") {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.Table(options.Table).AutoMigrate(&gormObject{}); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrapf(err, "AutoMigrate failed. table: %s", options.Table)
	}

	return &GormStorage{KVStorage: newKVStorage(&gormBackend{db: db, table: options.Table})}, nil
}

type gormBackend struct {
	db    *gorm.DB
	table string
}

func (b *gormBackend) tx(ctx context.Context) *gorm.DB {
	return b.db.WithContext(ctx).Table(b.table)
}

func (b *gormBackend) get(ctx context.Context, key string) ([]byte, bool, error) {
	var objs []gormObject
	if err := b.tx(ctx).Where("obj_key = ?", key).Limit(1).Find(&objs).Error; err != nil {
		return nil, false, errors.Wrap(err, "gorm.Find failed")
	}
	if len(objs) == 0 {
		return nil, false, nil
	}
	return objs[0].ObjVal, true, nil
}

func (b *gormBackend) put(ctx context.Context, key string, val []byte) error {
	err := b.tx(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "obj_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"obj_val"}),
	}).Create(&gormObject{ObjKey: key, ObjVal: val}).Error
	return errors.Wrap(err, "gorm.Create failed")
}

func (b *gormBackend) del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := b.tx(ctx).Where("obj_key IN ?", keys).Delete(&gormObject{}).Error
	return errors.Wrap(err, "gorm.Delete failed")
}

var likeReplacer = strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)

func (b *gormBackend) scan(ctx context.Context, prefix string, fn func(key string, val []byte) bool) error {
	var objs []gormObject
	err := b.tx(ctx).
		Where("obj_key LIKE ? ESCAPE '!'", likeReplacer.Replace(prefix)+"%").
		Order("obj_key").
		Find(&objs).Error
	if err != nil {
		return errors.Wrap(err, "gorm.Find failed")
	}
	for _, obj := range objs {
		// 大小写不敏感的排序规则下 LIKE 会多匹配
		if !strings.HasPrefix(obj.ObjKey, prefix) {
			continue
		}
		if !fn(obj.ObjKey, obj.ObjVal) {
			return nil
		}
	}
	return nil
}

func (b *gormBackend) close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return errors.Wrap(err, "gorm.DB failed")
	}
	return sqlDB.Close()
}
