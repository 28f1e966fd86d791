package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lavacaster/broadcaster/internal/backup"
	"github.com/lavacaster/broadcaster/internal/models"
	"github.com/lavacaster/broadcaster/internal/observability"
	"github.com/lavacaster/broadcaster/internal/registry"
)

// Handler binds the registry's Go API to the REST surface §6 describes.
// It holds no business logic of its own: every operation is a thin
// marshal/unmarshal shim around a Registry method, matching the teacher's
// handler-is-a-thin-adapter convention (tvarr internal/http/handlers).
type Handler struct {
	reg      *registry.Registry
	logs     *observability.RollingWriter
	backup   *backup.Scheduler
	logger   *slog.Logger
	restart  func()
	shutdown func()
}

// NewHandler builds a Handler. restart and shutdown are the process-level
// hooks the "system" operations invoke; either may be nil, in which case
// that operation reports 501 Not Implemented.
func NewHandler(reg *registry.Registry, logs *observability.RollingWriter, bk *backup.Scheduler, logger *slog.Logger, restart, shutdown func()) *Handler {
	return &Handler{reg: reg, logs: logs, backup: bk, logger: logger, restart: restart, shutdown: shutdown}
}

// Register wires every operation onto api, following the teacher's
// Register(api huma.API) convention (tvarr internal/http/handlers/channel.go).
func (h *Handler) Register(api huma.API) {
	huma.Register(api, huma.Operation{OperationID: "getStatus", Method: http.MethodGet, Path: "/api/status", Tags: []string{"Global"}}, h.GetStatus)
	huma.Register(api, huma.Operation{OperationID: "getProfile", Method: http.MethodGet, Path: "/api/profile", Tags: []string{"Global"}}, h.GetProfile)
	huma.Register(api, huma.Operation{OperationID: "setProfile", Method: http.MethodPut, Path: "/api/profile", Tags: []string{"Global"}}, h.SetProfile)
	huma.Register(api, huma.Operation{OperationID: "setBitrate", Method: http.MethodPut, Path: "/api/bitrate", Tags: []string{"Global"}}, h.SetBitrate)
	huma.Register(api, huma.Operation{OperationID: "setNIC", Method: http.MethodPut, Path: "/api/nic", Tags: []string{"Global"}}, h.SetNIC)
	huma.Register(api, huma.Operation{OperationID: "setMonitorNIC", Method: http.MethodPut, Path: "/api/monitor-nic", Tags: []string{"Global"}}, h.SetMonitorNIC)
	huma.Register(api, huma.Operation{OperationID: "setMediaPath", Method: http.MethodPut, Path: "/api/media-path", Tags: []string{"Global"}}, h.SetMediaPath)
	huma.Register(api, huma.Operation{OperationID: "setAutoStart", Method: http.MethodPut, Path: "/api/auto-start", Tags: []string{"Global"}}, h.SetAutoStart)

	huma.Register(api, huma.Operation{OperationID: "uploadChannel", Method: http.MethodPost, Path: "/api/upload/{cid}", Tags: []string{"Channel"}}, h.Upload)
	huma.Register(api, huma.Operation{OperationID: "retranscodeChannel", Method: http.MethodPost, Path: "/api/channels/{cid}/retranscode", Tags: []string{"Channel"}}, h.Retranscode)
	huma.Register(api, huma.Operation{OperationID: "updateChannel", Method: http.MethodPatch, Path: "/api/channels/{cid}", Tags: []string{"Channel"}}, h.UpdateChannel)
	huma.Register(api, huma.Operation{OperationID: "startChannel", Method: http.MethodPost, Path: "/api/channels/{cid}/start", Tags: []string{"Channel"}}, h.StartChannel)
	huma.Register(api, huma.Operation{OperationID: "stopChannel", Method: http.MethodPost, Path: "/api/channels/{cid}/stop", Tags: []string{"Channel"}}, h.StopChannel)
	huma.Register(api, huma.Operation{OperationID: "removeChannel", Method: http.MethodDelete, Path: "/api/channels/{cid}", Tags: []string{"Channel"}}, h.RemoveChannel)
	huma.Register(api, huma.Operation{OperationID: "getThumbnail", Method: http.MethodGet, Path: "/api/channels/{cid}/thumbnail", Tags: []string{"Channel"}}, h.GetThumbnail)

	huma.Register(api, huma.Operation{OperationID: "startAll", Method: http.MethodPost, Path: "/api/fleet/start", Tags: []string{"Fleet"}}, h.StartAll)
	huma.Register(api, huma.Operation{OperationID: "stopAll", Method: http.MethodPost, Path: "/api/fleet/stop", Tags: []string{"Fleet"}}, h.StopAll)

	huma.Register(api, huma.Operation{OperationID: "systemRestart", Method: http.MethodPost, Path: "/api/system/restart", Tags: []string{"System"}}, h.Restart)
	huma.Register(api, huma.Operation{OperationID: "systemShutdown", Method: http.MethodPost, Path: "/api/system/shutdown", Tags: []string{"System"}}, h.Shutdown)
	huma.Register(api, huma.Operation{OperationID: "readLogs", Method: http.MethodGet, Path: "/api/system/logs", Tags: []string{"System"}}, h.ReadLogs)
	huma.Register(api, huma.Operation{OperationID: "clearLogs", Method: http.MethodDelete, Path: "/api/system/logs", Tags: []string{"System"}}, h.ClearLogs)
	huma.Register(api, huma.Operation{OperationID: "runBackup", Method: http.MethodPost, Path: "/api/system/backup", Tags: []string{"System"}}, h.RunBackup)
}

// toHumaError maps a registry semantic error kind to its HTTP status (§7):
// ValidationError/ConflictError are client errors, NotFoundError is 404,
// anything else is surfaced as a 500.
func toHumaError(err error) error {
	var vErr *models.ValidationError
	if errors.As(err, &vErr) {
		return huma.Error422UnprocessableEntity(vErr.Error())
	}
	var nfErr *models.NotFoundError
	if errors.As(err, &nfErr) {
		return huma.Error404NotFound(nfErr.Error())
	}
	var cErr *models.ConflictError
	if errors.As(err, &cErr) {
		return huma.NewError(http.StatusConflict, cErr.Error())
	}
	return huma.Error500InternalServerError("internal error", err)
}

// --- Global ---

type emptyInput struct{}

type StatusOutput struct {
	Body struct {
		Settings models.GlobalSettings  `json:"settings"`
		Channels map[int]models.Channel `json:"channels"`
	}
}

func (h *Handler) GetStatus(ctx context.Context, in *emptyInput) (*StatusOutput, error) {
	out := &StatusOutput{}
	out.Body.Settings = h.reg.Settings()
	out.Body.Channels = h.reg.GetStatus()
	return out, nil
}

type ProfileOutput struct {
	Body models.Profile
}

func (h *Handler) GetProfile(ctx context.Context, in *emptyInput) (*ProfileOutput, error) {
	out := &ProfileOutput{Body: h.reg.Settings().DefaultProfile}
	return out, nil
}

type SetProfileInput struct {
	Body models.Profile
}

func (h *Handler) SetProfile(ctx context.Context, in *SetProfileInput) (*emptyOutput, error) {
	h.reg.SetGlobalProfile(in.Body)
	return &emptyOutput{}, nil
}

type emptyOutput struct{}

type BitrateInput struct {
	Body struct {
		Bitrate string `json:"bitrate"`
	}
}

func (h *Handler) SetBitrate(ctx context.Context, in *BitrateInput) (*emptyOutput, error) {
	if !models.ValidBitrate(in.Body.Bitrate) {
		return nil, toHumaError(models.NewValidationError("bitrate", models.ErrInvalidBitrate.Error()))
	}
	h.reg.ApplyGlobalBitrate(in.Body.Bitrate)
	return &emptyOutput{}, nil
}

type NICInput struct {
	Body struct {
		NIC string `json:"nic"`
	}
}

func (h *Handler) SetNIC(ctx context.Context, in *NICInput) (*emptyOutput, error) {
	h.reg.SetNIC(in.Body.NIC)
	return &emptyOutput{}, nil
}

func (h *Handler) SetMonitorNIC(ctx context.Context, in *NICInput) (*emptyOutput, error) {
	h.reg.SetMonitorNIC(in.Body.NIC)
	return &emptyOutput{}, nil
}

type MediaPathInput struct {
	Body struct {
		Path string `json:"path"`
	}
}

func (h *Handler) SetMediaPath(ctx context.Context, in *MediaPathInput) (*emptyOutput, error) {
	h.reg.SetMediaDir(in.Body.Path)
	return &emptyOutput{}, nil
}

type AutoStartInput struct {
	Body struct {
		Enabled bool `json:"enabled"`
	}
}

func (h *Handler) SetAutoStart(ctx context.Context, in *AutoStartInput) (*emptyOutput, error) {
	h.reg.SetAutoStart(in.Body.Enabled)
	return &emptyOutput{}, nil
}

// --- Per-channel ---

type cidInput struct {
	CID int `path:"cid"`
}

type UploadInput struct {
	CID int `path:"cid"`
	Body struct {
		SrcPath   string          `json:"src_path"`
		Filename  string          `json:"filename"`
		Overwrite bool            `json:"overwrite"`
		Profile   *models.Profile `json:"profile,omitempty"`
	}
}

type UploadOutput struct {
	Body struct {
		Decision registry.UploadDecision `json:"decision"`
	}
}

func (h *Handler) Upload(ctx context.Context, in *UploadInput) (*UploadOutput, error) {
	decision, err := h.reg.Upload(ctx, registry.UploadParams{
		CID: in.CID, SrcPath: in.Body.SrcPath, Filename: in.Body.Filename,
		Overwrite: in.Body.Overwrite, Profile: in.Body.Profile,
	})
	if err != nil {
		return nil, toHumaError(err)
	}
	out := &UploadOutput{}
	out.Body.Decision = decision
	return out, nil
}

type RetranscodeInput struct {
	CID  int `path:"cid"`
	Body struct {
		Profile models.Profile `json:"profile"`
	}
}

func (h *Handler) Retranscode(ctx context.Context, in *RetranscodeInput) (*emptyOutput, error) {
	if err := h.reg.Retranscode(ctx, in.CID, in.Body.Profile); err != nil {
		return nil, toHumaError(err)
	}
	return &emptyOutput{}, nil
}

type UpdateChannelInput struct {
	CID  int `path:"cid"`
	Body struct {
		IP       *string          `json:"ip,omitempty"`
		Port     *int             `json:"port,omitempty"`
		Encap    *string          `json:"encap,omitempty"`
		Bitrate  *string          `json:"bitrate,omitempty"`
		Loop     *bool            `json:"loop,omitempty"`
		NIC      *string          `json:"nic,omitempty"`
		Codec    *string          `json:"codec,omitempty"`
		Preset   *string          `json:"preset,omitempty"`
		VBitrate *string          `json:"vbitrate,omitempty"`
		ABitrate *string          `json:"abitrate,omitempty"`
	}
}

type UpdateChannelOutput struct {
	Body struct {
		WasRunning bool `json:"was_running"`
	}
}

func (h *Handler) UpdateChannel(ctx context.Context, in *UpdateChannelInput) (*UpdateChannelOutput, error) {
	update := models.ChannelUpdate{}
	update.Network.IP = in.Body.IP
	update.Network.Port = in.Body.Port
	update.Network.Bitrate = in.Body.Bitrate
	update.Network.Loop = in.Body.Loop
	update.Network.NIC = in.Body.NIC
	if in.Body.Encap != nil {
		e := models.Encapsulation(*in.Body.Encap)
		update.Network.Encap = &e
	}
	if in.Body.Codec != nil {
		c := models.Codec(*in.Body.Codec)
		update.Profile.Codec = &c
	}
	if in.Body.Preset != nil {
		p := models.Preset(*in.Body.Preset)
		update.Profile.Preset = &p
	}
	update.Profile.VBitrate = in.Body.VBitrate
	update.Profile.ABitrate = in.Body.ABitrate

	wasRunning, err := h.reg.UpdateChannel(in.CID, update)
	if err != nil {
		return nil, toHumaError(err)
	}
	out := &UpdateChannelOutput{}
	out.Body.WasRunning = wasRunning
	return out, nil
}

func (h *Handler) StartChannel(ctx context.Context, in *cidInput) (*emptyOutput, error) {
	h.reg.Start(in.CID)
	return &emptyOutput{}, nil
}

func (h *Handler) StopChannel(ctx context.Context, in *cidInput) (*emptyOutput, error) {
	h.reg.Stop(in.CID)
	return &emptyOutput{}, nil
}

type RemoveChannelOutput struct {
	Body struct {
		SrcPath  string `json:"src_path"`
		FilePath string `json:"filepath"`
		Thumb    string `json:"thumb"`
	}
}

func (h *Handler) RemoveChannel(ctx context.Context, in *cidInput) (*RemoveChannelOutput, error) {
	src, file, thumb, err := h.reg.RemoveChannel(in.CID)
	if err != nil {
		return nil, toHumaError(err)
	}
	_ = os.Remove(src)
	_ = os.Remove(file)
	if thumb != "" {
		_ = os.Remove(thumb)
	}
	out := &RemoveChannelOutput{}
	out.Body.SrcPath, out.Body.FilePath, out.Body.Thumb = src, file, thumb
	return out, nil
}

type ThumbnailOutput struct {
	Body []byte
}

func (h *Handler) GetThumbnail(ctx context.Context, in *cidInput) (*ThumbnailOutput, error) {
	path := h.reg.ThumbnailPath(in.CID)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, toHumaError(models.NewNotFoundError("thumbnail", filepath.Base(path)))
	}
	return &ThumbnailOutput{Body: data}, nil
}

// --- Fleet ---

type FleetOutput struct {
	Body struct {
		Count int `json:"count"`
	}
}

func (h *Handler) StartAll(ctx context.Context, in *emptyInput) (*FleetOutput, error) {
	out := &FleetOutput{}
	out.Body.Count = h.reg.StartAll()
	return out, nil
}

func (h *Handler) StopAll(ctx context.Context, in *emptyInput) (*FleetOutput, error) {
	out := &FleetOutput{}
	out.Body.Count = h.reg.StopAll()
	return out, nil
}

// --- System ---

func (h *Handler) Restart(ctx context.Context, in *emptyInput) (*emptyOutput, error) {
	if h.restart == nil {
		return nil, huma.Error501NotImplemented("restart hook not configured")
	}
	h.restart()
	return &emptyOutput{}, nil
}

func (h *Handler) Shutdown(ctx context.Context, in *emptyInput) (*emptyOutput, error) {
	if h.shutdown == nil {
		return nil, huma.Error501NotImplemented("shutdown hook not configured")
	}
	h.shutdown()
	return &emptyOutput{}, nil
}

type LogsOutput struct {
	Body struct {
		Lines []string `json:"lines"`
	}
}

func (h *Handler) ReadLogs(ctx context.Context, in *emptyInput) (*LogsOutput, error) {
	out := &LogsOutput{}
	if h.logs != nil {
		out.Body.Lines = h.logs.Lines()
	}
	return out, nil
}

func (h *Handler) ClearLogs(ctx context.Context, in *emptyInput) (*emptyOutput, error) {
	if h.logs != nil {
		if err := h.logs.Clear(); err != nil {
			return nil, huma.Error500InternalServerError("clearing logs", err)
		}
	}
	return &emptyOutput{}, nil
}

func (h *Handler) RunBackup(ctx context.Context, in *emptyInput) (*emptyOutput, error) {
	if h.backup == nil {
		return nil, huma.Error501NotImplemented("backup scheduler not configured")
	}
	if err := h.backup.RunNow(); err != nil {
		return nil, huma.Error500InternalServerError("running backup", err)
	}
	return &emptyOutput{}, nil
}
