package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/hatlonely/jsondb/cfg"
	"github.com/hatlonely/jsondb/log"
	"github.com/hatlonely/jsondb/ref"
	"github.com/pkg/errors"
)

// 写入时的临时文件后缀，List 会跳过这些文件
const tmpSuffix = ".tmp"

type FileStorageOptions struct {
	// Root 根目录，所有 key 都相对于它
	Root string `cfg:"root" validate:"required"`

	FileMode fs.FileMode `cfg:"fileMode" def:"0644"`
	DirMode  fs.FileMode `cfg:"dirMode" def:"0755"`

	// Logger Watch 出错时使用的日志器，为空使用默认日志器
	Logger *ref.TypeOptions `cfg:"logger"`
}

// FileStorage 本地文件系统，写入先落到同目录的临时文件再 rename，保证读者看到的总是完整文件
type FileStorage struct {
	root     string
	fileMode fs.FileMode
	dirMode  fs.FileMode
	logger   log.Logger
}

func NewFileStorageWithOptions(options *FileStorageOptions) (*FileStorage, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.SetDefaults failed")
	}
	if err := cfg.Validate(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.Validate failed")
	}

	root, err := filepath.Abs(options.Root)
	if err != nil {
		return nil, errors.Wrapf(err, "filepath.Abs failed. root: %s", options.Root)
	}
	if err := os.MkdirAll(root, options.DirMode); err != nil {
		return nil, errors.Wrapf(err, "os.MkdirAll failed. directory: %s", root)
	}

	logger, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		return nil, err
	}

	return &FileStorage{
		root:     root,
		fileMode: options.FileMode,
		dirMode:  options.DirMode,
		logger:   logger.WithGroup("fileStorage"),
	}, nil
}

// Root 根目录的绝对路径
func (s *FileStorage) Root() string {
	return s.root
}

// Path key 对应的本地路径
func (s *FileStorage) Path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(Clean(key)))
}

func (s *FileStorage) key(name string) (string, bool) {
	rel, err := filepath.Rel(s.root, name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return Clean(filepath.ToSlash(rel)), true
}

func (s *FileStorage) Get(ctx context.Context, key string) ([]byte, error) {
	buf, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(key)
		}
		if info, serr := os.Stat(s.Path(key)); serr == nil && info.IsDir() {
			return nil, notFound(key)
		}
		return nil, errors.Wrapf(err, "os.ReadFile failed. key: %s", key)
	}
	return buf, nil
}

func (s *FileStorage) Put(ctx context.Context, key string, data []byte) error {
	filename := s.Path(key)
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, s.dirMode); err != nil {
		return errors.Wrapf(err, "os.MkdirAll failed. directory: %s", dir)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(filename)+"."+uuid.NewString()+tmpSuffix)
	if err := os.WriteFile(tmp, data, s.fileMode); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "os.WriteFile failed. file: %s", tmp)
	}
	if err := os.Rename(tmp, filename); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "os.Rename failed. from: %s, to: %s", tmp, filename)
	}
	return nil
}

func (s *FileStorage) Del(ctx context.Context, key string) error {
	if Clean(key) == "" {
		return errors.New("refuse to delete the root directory")
	}
	if err := os.RemoveAll(s.Path(key)); err != nil {
		return errors.Wrapf(err, "os.RemoveAll failed. key: %s", key)
	}
	return nil
}

func (s *FileStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.Path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "os.Stat failed. key: %s", key)
}

func (s *FileStorage) Stat(ctx context.Context, key string) (*Info, error) {
	fi, err := os.Stat(s.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(key)
		}
		return nil, errors.Wrapf(err, "os.Stat failed. key: %s", key)
	}
	return s.info(Clean(key), fi), nil
}

func (s *FileStorage) info(key string, fi fs.FileInfo) *Info {
	info := &Info{Key: key, ModTime: fi.ModTime(), IsDir: fi.IsDir()}
	if !fi.IsDir() {
		info.Size = fi.Size()
	}
	return info
}

func (s *FileStorage) Rename(ctx context.Context, from string, to string) error {
	if ok, err := s.Exists(ctx, from); err != nil {
		return err
	} else if !ok {
		return notFound(from)
	}
	if ok, err := s.Exists(ctx, to); err != nil {
		return err
	} else if ok {
		return alreadyExists(to)
	}

	target := s.Path(to)
	if err := os.MkdirAll(filepath.Dir(target), s.dirMode); err != nil {
		return errors.Wrapf(err, "os.MkdirAll failed. directory: %s", filepath.Dir(target))
	}
	if err := os.Rename(s.Path(from), target); err != nil {
		return errors.Wrapf(err, "os.Rename failed. from: %s, to: %s", from, to)
	}
	return nil
}

func (s *FileStorage) Mkdir(ctx context.Context, dir string) error {
	if ok, err := s.Exists(ctx, dir); err != nil {
		return err
	} else if ok {
		return alreadyExists(dir)
	}
	if err := os.MkdirAll(s.Path(dir), s.dirMode); err != nil {
		return errors.Wrapf(err, "os.MkdirAll failed. directory: %s", dir)
	}
	return nil
}

func (s *FileStorage) IsDir(ctx context.Context, dir string) (bool, error) {
	fi, err := os.Stat(s.Path(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, errors.Wrapf(err, "os.Stat failed. key: %s", dir)
	}
	return fi.IsDir(), nil
}

func (s *FileStorage) List(ctx context.Context, dir string) ([]*Info, error) {
	entries, err := os.ReadDir(s.Path(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(dir)
		}
		return nil, errors.Wrapf(err, "os.ReadDir failed. directory: %s", dir)
	}

	infos := make([]*Info, 0, len(entries))
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), tmpSuffix) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			// 读目录和取信息之间被删除了
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, errors.Wrapf(err, "entry.Info failed. name: %s", entry.Name())
		}
		infos = append(infos, s.info(Join(dir, entry.Name()), fi))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Watch 监听 keys 所在的目录，keys 对应的文件被创建、写入、重命名或删除时回调 fn
//
// 通过本存储的 Put 写入同样会触发回调
func (s *FileStorage) Watch(ctx context.Context, keys []string, fn func(key string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "fsnotify.NewWatcher failed")
	}

	watched := map[string]struct{}{}
	dirs := map[string]struct{}{}
	for _, key := range keys {
		watched[Clean(key)] = struct{}{}
		dirs[filepath.Dir(s.Path(key))] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return errors.Wrapf(err, "watcher.Add failed. directory: %s", dir)
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
					!event.Op.Has(fsnotify.Rename) && !event.Op.Has(fsnotify.Remove) {
					continue
				}
				key, ok := s.key(event.Name)
				if !ok {
					continue
				}
				if _, ok := watched[key]; ok {
					fn(key)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.WarnContext(ctx, "watch failed", "error", err)
			}
		}
	}()

	return nil
}

func (s *FileStorage) Close() error {
	return nil
}
