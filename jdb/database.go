package jdb

import (
	"context"
	"path"
	"strings"

	"github.com/hatlonely/jsondb/doc"
	"github.com/hatlonely/jsondb/log"
	"github.com/hatlonely/jsondb/storage"
	"github.com/pkg/errors"
)

// Database 存储中的一个目录，每张表是目录下的 <name>.json 和 <name>.meta.json 两个文件
//
// 数据库本身不保存任何状态，每次查询都从存储重新读取
type Database struct {
	storage storage.Storage
	logger  log.Logger
	path    string
}

func newDatabase(s storage.Storage, logger log.Logger, dir string) *Database {
	return &Database{storage: s, logger: logger, path: storage.Clean(dir)}
}

// Name 路径的最后一段
func (db *Database) Name() string {
	return path.Base(db.path)
}

// Path 数据库目录的 key
func (db *Database) Path() string {
	return db.path
}

func (db *Database) TableExists(ctx context.Context, name string) (bool, error) {
	ok, err := db.storage.Exists(ctx, DataKey(db.path, name))
	if err != nil {
		return false, newError(ErrFileSystem, db.qualify(name), err)
	}
	return ok, nil
}

func (db *Database) qualify(name string) string {
	return db.Name() + "." + name
}

// CreateTable 写入空的数据文件和 rows、current_id 都为 0 的元数据文件
func (db *Database) CreateTable(ctx context.Context, name string) error {
	if name == "" || strings.Contains(name, "/") {
		return newError(ErrFileSystem, name, errors.New("invalid table name"))
	}
	exists, err := db.TableExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return newError(ErrAlreadyExists, db.qualify(name), nil)
	}

	if err := db.storage.Put(ctx, DataKey(db.path, name), []byte("[]")); err != nil {
		return newError(ErrFileSystem, DataKey(db.path, name), err)
	}
	meta := NewMeta(db.storage, MetaKey(db.path, name))
	meta.Set(MetaRows, doc.Int(0))
	meta.Set(MetaCurrentID, doc.Int(0))
	if _, err := meta.Save(ctx); err != nil {
		return err
	}

	db.logger.InfoContext(ctx, "table created", "database", db.path, "table", name)
	return nil
}

// Table 加载整张表
func (db *Database) Table(ctx context.Context, name string) (*Table, error) {
	exists, err := db.TableExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, newError(ErrNotFound, db.qualify(name), nil)
	}
	return loadTable(ctx, db.storage, db.logger, db.path, name)
}

// Tables 有元数据文件的表名，按名字排序
func (db *Database) Tables(ctx context.Context) ([]string, error) {
	infos, err := db.storage.List(ctx, db.path)
	if err != nil {
		return nil, newError(ErrFileSystem, db.path, err)
	}
	var names []string
	for _, info := range infos {
		if info.IsDir {
			continue
		}
		if name, ok := strings.CutSuffix(info.Name(), MetaExt); ok && name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// DropTable 删除表的数据和元数据文件
func (db *Database) DropTable(ctx context.Context, name string) error {
	exists, err := db.TableExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return newError(ErrNotFound, db.qualify(name), nil)
	}
	if err := db.storage.Del(ctx, DataKey(db.path, name)); err != nil {
		return newError(ErrFileSystem, DataKey(db.path, name), err)
	}
	if err := db.storage.Del(ctx, MetaKey(db.path, name)); err != nil {
		return newError(ErrFileSystem, MetaKey(db.path, name), err)
	}
	db.logger.InfoContext(ctx, "table dropped", "database", db.path, "table", name)
	return nil
}

// Rename 在同一个父目录下重命名数据库
func (db *Database) Rename(ctx context.Context, newName string) error {
	target := storage.Join(storage.Dir(db.path), newName)

	exists, err := db.storage.Exists(ctx, target)
	if err != nil {
		return newError(ErrFileSystem, target, err)
	}
	if exists {
		return newError(ErrAlreadyExists, newName, errors.Errorf("database %s cannot be renamed to %s", db.Name(), newName))
	}
	if err := db.storage.Rename(ctx, db.path, target); err != nil {
		return newError(ErrFileSystem, db.path, err)
	}

	db.logger.InfoContext(ctx, "database renamed", "from", db.path, "to", target)
	db.path = target
	return nil
}

// Size 目录下所有文件的大小之和
func (db *Database) Size(ctx context.Context) (int64, error) {
	infos, err := db.storage.List(ctx, db.path)
	if err != nil {
		return 0, newError(ErrFileSystem, db.path, err)
	}
	var size int64
	for _, info := range infos {
		size += info.Size
	}
	return size, nil
}

// Stat 数据库目录的信息
func (db *Database) Stat(ctx context.Context) (*storage.Info, error) {
	info, err := db.storage.Stat(ctx, db.path)
	if err != nil {
		return nil, newError(ErrFileSystem, db.path, err)
	}
	return info, nil
}
