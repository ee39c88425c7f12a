package mstore

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gowvp/tams/internal/conf"
	"github.com/ixugo/goddd/pkg/orm"
)

var (
	ErrNotExist    = errors.New("object does not exist")
	ErrTooLarge    = errors.New("object exceeds max file size")
	ErrBadObjectID = errors.New("invalid object id")
)

// Store 文件系统对象存储。
// 目录只负责字节，对象元数据登记在目录数据库里。
type Store struct {
	dir          string
	maxFileSize  int64
	publicBase   string
	uploadExpiry time.Duration
}

// UploadTicket 预分配的上传位
type UploadTicket struct {
	ObjectID  string   `json:"object_id"`
	PutURL    string   `json:"put_url"`
	ExpiresAt orm.Time `json:"expires_at"`
}

func NewStore(cfg conf.Store) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{
		dir:          cfg.Dir,
		maxFileSize:  cfg.MaxFileSize,
		publicBase:   strings.TrimRight(cfg.PublicURLBase, "/"),
		uploadExpiry: cfg.UploadExpiry.Duration(),
	}, nil
}

// path 对象在磁盘上的位置，拒绝越出存储目录的标识
func (s *Store) path(objectID string) (string, error) {
	if objectID == "" || strings.ContainsAny(objectID, "/\\") ||
		strings.Contains(objectID, "..") {
		return "", fmt.Errorf("%w [%s]", ErrBadObjectID, objectID)
	}
	return filepath.Join(s.dir, objectID), nil
}

func (s *Store) Exists(objectID string) bool {
	p, err := s.path(objectID)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Stat 返回对象大小与按扩展名推断的 MIME 类型
func (s *Store) Stat(objectID string) (int64, string, error) {
	p, err := s.path(objectID)
	if err != nil {
		return 0, "", err
	}
	fi, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, "", ErrNotExist
		}
		return 0, "", err
	}
	return fi.Size(), mime.TypeByExtension(filepath.Ext(objectID)), nil
}

// Put 写入对象字节，临时文件落盘后改名，超出上限整体拒绝
func (s *Store) Put(objectID string, r io.Reader) (int64, error) {
	p, err := s.path(objectID)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(r, s.maxFileSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if n > s.maxFileSize {
		return 0, ErrTooLarge
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return 0, err
	}
	return n, nil
}

// Open 打开对象读取流，调用方负责关闭
func (s *Store) Open(objectID string) (*os.File, error) {
	p, err := s.path(objectID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	return f, nil
}

func (s *Store) Delete(objectID string) error {
	p, err := s.path(objectID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// AllocateUploads 预分配上传位。
// 指定 objectIDs 时逐个校验复用，否则生成新标识。
func (s *Store) AllocateUploads(limit int, objectIDs []string) ([]UploadTicket, error) {
	if limit <= 0 {
		limit = 1
	}
	if len(objectIDs) == 0 {
		objectIDs = make([]string, limit)
		for i := range objectIDs {
			objectIDs[i] = uuid.NewString()
		}
	}

	expires := orm.Time{Time: time.Now().Add(s.uploadExpiry)}
	out := make([]UploadTicket, 0, len(objectIDs))
	for _, id := range objectIDs {
		if _, err := s.path(id); err != nil {
			return nil, err
		}
		out = append(out, UploadTicket{
			ObjectID:  id,
			PutURL:    fmt.Sprintf("%s/api/objects/%s", s.publicBase, id),
			ExpiresAt: expires,
		})
	}
	return out, nil
}

// MaxFileSize 单对象字节上限
func (s *Store) MaxFileSize() int64 { return s.maxFileSize }
