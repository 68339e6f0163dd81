package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskhub-api/domain"
)

// taskBodyMaxSize bounds request bodies before decoding.
const taskBodyMaxSize = 64 << 10

// Register wires up the task API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, logger *log.Logger) {
	e.GET("/api/tasks", getTasks(store, auth, logger))
	e.POST("/api/tasks", createTask(store, auth))
	e.PUT("/api/tasks/:taskId", updateTask(store, auth))
	e.DELETE("/api/tasks/:taskId", deleteTask(store, auth))
	e.GET("/api/tasks/stream", streamTasks(store, auth))
	e.GET("/healthz", healthz(store))
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorResponse{Error: msg})
}

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func healthz(_ Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		//TODO: implement healthcheck
		return c.NoContent(http.StatusOK)
	}
}

func getTasks(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, logger)
		if spanCtx != nil {
			req := c.Request().WithContext(spanCtx)
			c.SetRequest(req)
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		identity, authErr := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = jsonError(c, http.StatusUnauthorized, authErr.Error())
			return err
		}

		fetchStart := time.Now()
		tasks, fetchErr := store.ListTasks(ctx, identity.UserID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = jsonError(c, http.StatusInternalServerError, fetchErr.Error())
			return err
		}
		if tasks == nil {
			tasks = []domain.Task{}
		}
		metrics.SetTasksReturned(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasks)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func createTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		identity, err := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return jsonError(c, http.StatusUnauthorized, err.Error())
		}

		var req createTaskRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid body")
		}
		if strings.TrimSpace(req.Title) == "" {
			return jsonError(c, http.StatusBadRequest, "title is required")
		}

		task := domain.Task{
			ID:          uuid.NewString(),
			UserID:      identity.UserID,
			Title:       req.Title,
			Description: req.Description,
			Done:        false,
			CreatedAt:   time.Now().UTC(),
		}
		if err := store.PutTask(ctx, task); err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, task)
	}
}

func updateTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		identity, err := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return jsonError(c, http.StatusUnauthorized, err.Error())
		}

		var patch domain.TaskPatch
		if err := decodeBody(c.Request().Body, &patch); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid body")
		}

		taskID := c.Param("taskId")
		task, err := store.GetTask(ctx, identity.UserID, taskID)
		if err != nil {
			var notFound NotFoundError
			if errors.As(err, &notFound) {
				// Missing and not-owned are indistinguishable on purpose.
				return jsonError(c, http.StatusForbidden, "Forbidden")
			}
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, err.Error())
		}

		patch.Apply(&task)
		if err := store.PutTask(ctx, task); err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		identity, err := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return jsonError(c, http.StatusUnauthorized, err.Error())
		}

		taskID := c.Param("taskId")
		if _, err := store.GetTask(ctx, identity.UserID, taskID); err != nil {
			var notFound NotFoundError
			if errors.As(err, &notFound) {
				return jsonError(c, http.StatusForbidden, "Forbidden")
			}
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, err.Error())
		}

		if err := store.DeleteTask(ctx, identity.UserID, taskID); err != nil {
			var notFound NotFoundError
			if errors.As(err, &notFound) {
				// Lost a race against a concurrent delete of the same task.
				return jsonError(c, http.StatusForbidden, "Forbidden")
			}
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, messageResponse{Message: "Task deleted"})
	}
}

func decodeBody(body io.Reader, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(body, taskBodyMaxSize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
