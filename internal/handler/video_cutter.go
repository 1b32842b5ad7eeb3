package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"ai-video-cutter/internal/dto"
	"ai-video-cutter/internal/response"
	"ai-video-cutter/internal/service"
	"ai-video-cutter/log"
	apperrors "ai-video-cutter/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

func (h Handler) UploadVideo(c *gin.Context) {
	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	}
	file, err := c.FormFile("file")
	if err != nil {
		log.GetLogger().Warn("[Handler] upload without file", zap.Error(err))
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeInvalidParams, "No file uploaded", err))
		return
	}
	if !h.extAllowed(filepath.Ext(file.Filename)) {
		response.ErrorResponse(c, apperrors.WrapWithDetail(apperrors.CodeInvalidParams, "Unsupported file type", "file: "+file.Filename, nil))
		return
	}

	videoID, savePath, err := h.Service.PrepareUpload(file.Filename)
	if err != nil {
		response.ErrorResponse(c, err)
		return
	}
	if err = c.SaveUploadedFile(file, savePath); err != nil {
		log.GetLogger().Error("[Handler] save upload failed", zap.String("path", savePath), zap.Error(err))
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeFileWriteError, "Saving the upload failed", err))
		return
	}

	videoID, taskID, err := h.Service.SubmitUpload(c.Request.Context(), service.UploadRequest{
		VideoId:      videoID,
		Path:         savePath,
		OriginalName: filepath.Base(file.Filename),
	})
	if err != nil {
		response.ErrorResponse(c, err)
		return
	}
	response.Success(c, dto.UploadVideoResData{VideoId: videoID, TaskId: taskID})
}

func (h Handler) GetStatus(c *gin.Context) {
	view := h.Service.PollStatus(c.Param("taskId"))
	data := dto.TaskStatusResData{
		Found:         view.Found,
		TaskId:        view.TaskId,
		Kind:          string(view.Kind),
		VideoId:       view.VideoId,
		State:         string(view.State),
		StatusMessage: view.StatusMessage,
		Result:        dto.TaskResultFrom(view.Result, "/api/output/"+view.TaskId),
		Error:         dto.TaskErrorFrom(view.Error),
	}
	response.Success(c, data)
}

func (h Handler) Chat(c *gin.Context) {
	var req dto.ChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeInvalidParams, "Invalid parameters", err))
		return
	}
	taskID, err := h.Service.SubmitChatTurn(c.Request.Context(), c.Param("videoId"), req.Message)
	if err != nil {
		response.ErrorResponse(c, err)
		return
	}
	response.Success(c, dto.ChatResData{TaskId: taskID})
}

func (h Handler) ChatHistory(c *gin.Context) {
	turns, err := h.Service.History(c.Request.Context(), c.Param("videoId"))
	if err != nil {
		response.ErrorResponse(c, err)
		return
	}
	response.Success(c, dto.ChatTurnsFrom(turns))
}

func (h Handler) Finalize(c *gin.Context) {
	var req dto.FinalizeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeInvalidParams, "Invalid parameters", err))
		return
	}
	cuts := lo.Map(req.Cuts, func(cut dto.Cut, _ int) service.CutInput {
		return service.CutInput{Start: cut.Start, End: cut.End}
	})
	taskID, outputPath, err := h.Service.SubmitFinalize(c.Request.Context(), req.VideoId, cuts)
	if err != nil {
		response.ErrorResponse(c, err)
		return
	}
	response.Success(c, dto.FinalizeResData{TaskId: taskID, OutputPath: outputPath})
}

func (h Handler) ServeVideo(c *gin.Context) {
	video, err := h.Service.Video(c.Param("videoId"))
	if err != nil {
		response.NotFound(c, err)
		return
	}
	if _, err = os.Stat(video.Path); err != nil {
		response.NotFound(c, apperrors.Wrap(apperrors.CodeVideoNotFound, "Video file missing", err))
		return
	}
	c.File(video.Path)
}

func (h Handler) VideoState(c *gin.Context) {
	view, err := h.Service.VideoState(c.Param("videoId"))
	if err != nil {
		response.ErrorResponse(c, err)
		return
	}
	response.Success(c, dto.VideoStateResData{
		VideoId:          view.VideoId,
		State:            string(view.State),
		DurationSeconds:  dto.DurationSeconds(view.Duration),
		CompletedChats:   view.CompletedChats,
		FinalizedOutputs: view.FinalizedOutput,
	})
}

func (h Handler) DownloadOutput(c *gin.Context) {
	outputPath, err := h.Service.OutputFor(c.Param("taskId"))
	if err != nil {
		response.NotFound(c, err)
		return
	}
	if _, err = os.Stat(outputPath); err != nil {
		response.NotFound(c, apperrors.Wrap(apperrors.CodeNotFound, "Output file missing", err))
		return
	}
	c.FileAttachment(outputPath, filepath.Base(outputPath))
}
