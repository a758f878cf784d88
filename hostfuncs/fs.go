package hostfuncs

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/domain/ports"
	"go.uber.org/zap"
)

// fs op names.
const (
	OpFSReadFile     = "op_fs_read_file"
	OpFSWriteFile    = "op_fs_write_file"
	OpFSTruncate     = "op_fs_truncate"
	OpFSStat         = "op_fs_stat"
	OpFSReadDir      = "op_fs_read_dir"
	OpFSRealpath     = "op_fs_realpath"
	OpFSMkdir        = "op_fs_mkdir"
	OpFSRemove       = "op_fs_remove"
	OpFSOpen         = "op_fs_open"
	OpFSCwd          = "op_fs_cwd"
	OpFSMakeTempFile = "op_fs_make_temp_file"
	OpFSGlob         = "op_fs_glob"
)

// Blind request details.
const (
	DetailCwd  = "CWD"
	DetailTemp = "TMP"
)

const (
	defaultFileMode fs.FileMode = 0o644
	defaultDirMode  fs.FileMode = 0o755
)

// PathRequest names a single path.
type PathRequest struct {
	Path string `json:"path"`
}

// PathResponse returns a single path.
type PathResponse struct {
	*ErrorResponse
	Path string `json:"path,omitempty"`
}

// ReadFileRequest reads a whole file.
type ReadFileRequest struct {
	Path     string `json:"path"`
	Encoding string `json:"encoding,omitempty"`
}

// ReadFileResponse carries file contents in the requested encoding.
type ReadFileResponse struct {
	*ErrorResponse
	Data string `json:"data"`
}

// WriteFileRequest replaces or appends to a file.
type WriteFileRequest struct {
	Path     string `json:"path"`
	Data     string `json:"data"`
	Encoding string `json:"encoding,omitempty"`
	Mode     uint32 `json:"mode,omitempty"`
	Append   bool   `json:"append,omitempty"`
}

// TruncateRequest resizes a file.
type TruncateRequest struct {
	Path string `json:"path"`
	Len  int64  `json:"len"`
}

// FileInfo describes a filesystem entry.
type FileInfo struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	MtimeMs   int64  `json:"mtimeMs"`
	Mode      uint32 `json:"mode"`
	IsFile    bool   `json:"isFile"`
	IsDir     bool   `json:"isDirectory"`
	IsSymlink bool   `json:"isSymlink"`
}

// StatResponse returns entry metadata.
type StatResponse struct {
	*ErrorResponse
	Info *FileInfo `json:"info,omitempty"`
}

// ReadDirResponse lists a directory.
type ReadDirResponse struct {
	*ErrorResponse
	Entries []FileInfo `json:"entries"`
}

// MkdirRequest creates a directory.
type MkdirRequest struct {
	Path      string `json:"path"`
	Mode      uint32 `json:"mode,omitempty"`
	Recursive bool   `json:"recursive,omitempty"`
}

// RemoveRequest removes a file or directory.
type RemoveRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive,omitempty"`
}

// OpenRequest opens a file as a resource. With no access flags the file is
// opened read-only.
type OpenRequest struct {
	Path     string `json:"path"`
	Mode     uint32 `json:"mode,omitempty"`
	Read     bool   `json:"read,omitempty"`
	Write    bool   `json:"write,omitempty"`
	Append   bool   `json:"append,omitempty"`
	Create   bool   `json:"create,omitempty"`
	Truncate bool   `json:"truncate,omitempty"`
}

// OpenResponse returns the resource id of the opened file.
type OpenResponse struct {
	*ErrorResponse
	Rid int `json:"rid"`
}

// MakeTempFileRequest creates an empty temporary file. An empty Dir uses the
// backend's temp directory.
type MakeTempFileRequest struct {
	Dir    string `json:"dir,omitempty"`
	Prefix string `json:"prefix,omitempty"`
	Suffix string `json:"suffix,omitempty"`
}

// GlobRequest matches a doublestar pattern.
type GlobRequest struct {
	Pattern string `json:"pattern"`
}

// GlobResponse lists matching paths.
type GlobResponse struct {
	*ErrorResponse
	Matches []string `json:"matches"`
}

// fsConfig holds configuration for an FSModule.
type fsConfig struct {
	logger       *zap.Logger
	fetchTimeout time.Duration
}

func defaultFSConfig() fsConfig {
	return fsConfig{
		logger:       zap.NewNop(),
		fetchTimeout: 30 * time.Second,
	}
}

// FSOption configures an FSModule.
type FSOption func(*fsConfig)

// WithFetchTimeout bounds a single module fetch. Zero disables the bound.
func WithFetchTimeout(d time.Duration) FSOption {
	return func(c *fsConfig) {
		c.fetchTimeout = d
	}
}

// WithFSLogger sets the logger for fetch diagnostics.
func WithFSLogger(logger *zap.Logger) FSOption {
	return func(c *fsConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// FSModule serves filesystem ops over a backend. Every op puts exactly one
// request to the broker and touches the backend only after an allow.
type FSModule struct {
	backend ports.FileSystem
	config  fsConfig
}

// NewFSModule creates an FSModule over backend.
func NewFSModule(backend ports.FileSystem, opts ...FSOption) *FSModule {
	cfg := defaultFSConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &FSModule{backend: backend, config: cfg}
}

// Backend returns the filesystem the module operates on.
func (m *FSModule) Backend() ports.FileSystem {
	return m.backend
}

// Bundle returns the fs ops.
func (m *FSModule) Bundle() HostFuncBundle {
	return NewBundle(map[string]ByteHandler{
		OpFSReadFile:     NewJSONHandler(m.ReadFile),
		OpFSWriteFile:    NewJSONHandler(m.WriteFile),
		OpFSTruncate:     NewJSONHandler(m.Truncate),
		OpFSStat:         NewJSONHandler(m.Stat),
		OpFSReadDir:      NewJSONHandler(m.ReadDir),
		OpFSRealpath:     NewJSONHandler(m.Realpath),
		OpFSMkdir:        NewJSONHandler(m.Mkdir),
		OpFSRemove:       NewJSONHandler(m.Remove),
		OpFSOpen:         NewJSONHandler(m.Open),
		OpFSCwd:          NewJSONHandler(m.Cwd),
		OpFSMakeTempFile: NewJSONHandler(m.MakeTempFile),
		OpFSGlob:         NewJSONHandler(m.Glob),
	})
}

// ReadFile implements op_fs_read_file.
func (m *FSModule) ReadFile(ctx context.Context, req ReadFileRequest) ReadFileResponse {
	path, errResp := authorizeOp(ctx, entities.NewRequest(entities.CapabilityRead, req.Path, "readFile"))
	if errResp != nil {
		return ReadFileResponse{ErrorResponse: errResp}
	}
	data, err := m.backend.ReadFile(ctx, path)
	if err != nil {
		return ReadFileResponse{ErrorResponse: NewIOError(err).Ptr()}
	}
	text, errResp := encodeData(data, req.Encoding)
	if errResp != nil {
		return ReadFileResponse{ErrorResponse: errResp}
	}
	return ReadFileResponse{Data: text}
}

// WriteFile implements op_fs_write_file. Appending needs only WritePartial.
func (m *FSModule) WriteFile(ctx context.Context, req WriteFileRequest) EmptyResponse {
	data, errResp := decodeData(req.Data, req.Encoding)
	if errResp != nil {
		return EmptyResponse{ErrorResponse: errResp}
	}
	c, api := entities.CapabilityWrite, "writeFile"
	if req.Append {
		c, api = entities.CapabilityWritePartial, "appendFile"
	}
	path, errResp := authorizeOp(ctx, entities.NewRequest(c, req.Path, api))
	if errResp != nil {
		return EmptyResponse{ErrorResponse: errResp}
	}

	mode := fileMode(req.Mode, defaultFileMode)
	var err error
	if req.Append {
		err = m.backend.AppendFile(ctx, path, data, mode)
	} else {
		err = m.backend.WriteFile(ctx, path, data, mode)
	}
	if err != nil {
		return EmptyResponse{ErrorResponse: NewIOError(err).Ptr()}
	}
	return EmptyResponse{}
}

// Truncate implements op_fs_truncate.
func (m *FSModule) Truncate(ctx context.Context, req TruncateRequest) EmptyResponse {
	if req.Len < 0 {
		return EmptyResponse{ErrorResponse: NewValidationError("negative length").Ptr()}
	}
	path, errResp := authorizeOp(ctx, entities.NewRequest(entities.CapabilityWritePartial, req.Path, "truncate"))
	if errResp != nil {
		return EmptyResponse{ErrorResponse: errResp}
	}
	if err := m.backend.Truncate(ctx, path, req.Len); err != nil {
		return EmptyResponse{ErrorResponse: NewIOError(err).Ptr()}
	}
	return EmptyResponse{}
}

// Stat implements op_fs_stat.
func (m *FSModule) Stat(ctx context.Context, req PathRequest) StatResponse {
	path, errResp := authorizeOp(ctx, entities.NewRequest(entities.CapabilityRead, req.Path, "stat"))
	if errResp != nil {
		return StatResponse{ErrorResponse: errResp}
	}
	info, err := m.backend.Stat(ctx, path)
	if err != nil {
		return StatResponse{ErrorResponse: NewIOError(err).Ptr()}
	}
	fi := toFileInfo(info)
	return StatResponse{Info: &fi}
}

// ReadDir implements op_fs_read_dir.
func (m *FSModule) ReadDir(ctx context.Context, req PathRequest) ReadDirResponse {
	path, errResp := authorizeOp(ctx, entities.NewRequest(entities.CapabilityRead, req.Path, "readDir"))
	if errResp != nil {
		return ReadDirResponse{ErrorResponse: errResp}
	}
	infos, err := m.backend.ReadDir(ctx, path)
	if err != nil {
		return ReadDirResponse{ErrorResponse: NewIOError(err).Ptr()}
	}
	entries := make([]FileInfo, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, toFileInfo(info))
	}
	return ReadDirResponse{Entries: entries}
}

// Realpath implements op_fs_realpath.
func (m *FSModule) Realpath(ctx context.Context, req PathRequest) PathResponse {
	path, errResp := authorizeOp(ctx, entities.NewRequest(entities.CapabilityRead, req.Path, "realpath"))
	if errResp != nil {
		return PathResponse{ErrorResponse: errResp}
	}
	resolved, err := m.backend.Realpath(ctx, path)
	if err != nil {
		return PathResponse{ErrorResponse: NewIOError(err).Ptr()}
	}
	return PathResponse{Path: resolved}
}

// Mkdir implements op_fs_mkdir. Without Recursive the parent must exist and
// the target must not.
func (m *FSModule) Mkdir(ctx context.Context, req MkdirRequest) EmptyResponse {
	path, errResp := authorizeOp(ctx, entities.NewRequest(entities.CapabilityWrite, req.Path, "mkdir"))
	if errResp != nil {
		return EmptyResponse{ErrorResponse: errResp}
	}
	if !req.Recursive {
		if _, err := m.backend.Stat(ctx, path); err == nil {
			return EmptyResponse{ErrorResponse: NewIOError(&fs.PathError{Op: "mkdir", Path: req.Path, Err: fs.ErrExist}).Ptr()}
		}
		if _, err := m.backend.Stat(ctx, filepath.Dir(path)); err != nil {
			return EmptyResponse{ErrorResponse: NewIOError(err).Ptr()}
		}
	}
	if err := m.backend.MkdirAll(ctx, path, fileMode(req.Mode, defaultDirMode)); err != nil {
		return EmptyResponse{ErrorResponse: NewIOError(err).Ptr()}
	}
	return EmptyResponse{}
}

// Remove implements op_fs_remove.
func (m *FSModule) Remove(ctx context.Context, req RemoveRequest) EmptyResponse {
	path, errResp := authorizeOp(ctx, entities.NewRequest(entities.CapabilityWrite, req.Path, "remove"))
	if errResp != nil {
		return EmptyResponse{ErrorResponse: errResp}
	}
	if err := m.backend.Remove(ctx, path, req.Recursive); err != nil {
		return EmptyResponse{ErrorResponse: NewIOError(err).Ptr()}
	}
	return EmptyResponse{}
}

// Open implements op_fs_open. The file joins the State's resource table.
func (m *FSModule) Open(ctx context.Context, req OpenRequest) OpenResponse {
	write := req.Write || req.Append || req.Create || req.Truncate
	read := req.Read || !write
	flags := entities.OpenFlags{Read: read, Write: write}
	path, errResp := authorizeOp(ctx, entities.NewOpenRequest(req.Path, flags, "open"))
	if errResp != nil {
		return OpenResponse{ErrorResponse: errResp}
	}

	st := StateFrom(ctx)
	if st == nil {
		return OpenResponse{ErrorResponse: NewInternalError("no engine state").Ptr()}
	}
	f, err := m.backend.OpenFile(ctx, path, openFlag(req, read, write), fileMode(req.Mode, defaultFileMode))
	if err != nil {
		return OpenResponse{ErrorResponse: NewIOError(err).Ptr()}
	}
	return OpenResponse{Rid: st.AddResource(f)}
}

// Cwd implements op_fs_cwd.
func (m *FSModule) Cwd(ctx context.Context, _ struct{}) PathResponse {
	cwd := m.backend.Getwd()
	if _, errResp := authorizeOp(ctx, entities.NewBlindRequest(entities.CapabilityReadBlind, cwd, DetailCwd, "cwd")); errResp != nil {
		return PathResponse{ErrorResponse: errResp}
	}
	return PathResponse{Path: cwd}
}

// MakeTempFile implements op_fs_make_temp_file. A caller-chosen directory is
// an ordinary Write; the backend temp directory is a blind write.
func (m *FSModule) MakeTempFile(ctx context.Context, req MakeTempFileRequest) PathResponse {
	var preq entities.PermissionRequest
	if req.Dir != "" {
		preq = entities.NewRequest(entities.CapabilityWrite, req.Dir, "makeTempFile")
	} else {
		preq = entities.NewBlindRequest(entities.CapabilityWriteBlind, m.backend.TempDir(), DetailTemp, "makeTempFile")
	}
	dir, errResp := authorizeOp(ctx, preq)
	if errResp != nil {
		return PathResponse{ErrorResponse: errResp}
	}
	name, err := m.backend.CreateTemp(ctx, dir, req.Prefix+"*"+req.Suffix)
	if err != nil {
		return PathResponse{ErrorResponse: NewIOError(err).Ptr()}
	}
	return PathResponse{Path: name}
}

// Glob implements op_fs_glob. Matching may visit any directory, so it needs ReadAll.
func (m *FSModule) Glob(ctx context.Context, req GlobRequest) GlobResponse {
	if req.Pattern == "" {
		return GlobResponse{ErrorResponse: NewValidationError("empty pattern").Ptr()}
	}
	if _, errResp := authorizeOp(ctx, entities.NewCategoryRequest(entities.CapabilityReadAll, "glob")); errResp != nil {
		return GlobResponse{ErrorResponse: errResp}
	}
	matches, err := m.backend.Glob(ctx, req.Pattern)
	if err != nil {
		return GlobResponse{ErrorResponse: NewIOError(err).Ptr()}
	}
	if matches == nil {
		matches = []string{}
	}
	return GlobResponse{Matches: matches}
}

func toFileInfo(info fs.FileInfo) FileInfo {
	return FileInfo{
		Name:      info.Name(),
		Size:      info.Size(),
		MtimeMs:   info.ModTime().UnixMilli(),
		Mode:      uint32(info.Mode().Perm()),
		IsFile:    info.Mode().IsRegular(),
		IsDir:     info.IsDir(),
		IsSymlink: info.Mode()&fs.ModeSymlink != 0,
	}
}

func fileMode(mode uint32, def fs.FileMode) fs.FileMode {
	if mode == 0 {
		return def
	}
	return fs.FileMode(mode).Perm()
}

func openFlag(req OpenRequest, read, write bool) int {
	var flag int
	switch {
	case read && write:
		flag = os.O_RDWR
	case write:
		flag = os.O_WRONLY
	default:
		flag = os.O_RDONLY
	}
	if req.Append {
		flag |= os.O_APPEND
	}
	if req.Create {
		flag |= os.O_CREATE
	}
	if req.Truncate {
		flag |= os.O_TRUNC
	}
	return flag
}
