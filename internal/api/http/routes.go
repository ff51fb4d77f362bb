package httpapi

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
	"github.com/i474232898/airquality-aggregation/internal/airquality/providers"
	"github.com/i474232898/airquality-aggregation/internal/store"
)

var validate = validator.New()

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. defaults
// fills in whatever an analysis request leaves out.
func RegisterRoutes(app *fiber.App, service *airquality.Service, defaults airquality.AnalysisPlan) {
	v1 := app.Group("/api/v1")

	v1.Get("/keys/check", func(c *fiber.Ctx) error {
		res, err := service.CheckKey(c.UserContext(), c.Get("X-API-Key"))
		if err != nil {
			return upstreamError(err)
		}
		if !res.OK {
			return upstreamFailure(c, res.Outcome)
		}
		return c.JSON(res)
	})

	v1.Get("/sensors/:id/history", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "sensor id must be an integer")
		}

		req := airquality.HistoryRequest{
			SensorID: id,
			Fields:   c.Query("fields", defaults.Fields),
			Start:    c.Query("start"),
			End:      c.Query("end"),
			APIKey:   c.Get("X-API-Key"),
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		res, err := service.History(c.UserContext(), req)
		if err != nil {
			return upstreamError(err)
		}
		if !res.OK {
			return upstreamFailure(c, res.Outcome)
		}
		return c.JSON(res)
	})

	v1.Post("/catalog/search", func(c *fiber.Ctx) error {
		var q airquality.CatalogQuery
		if err := c.BodyParser(&q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if q.BBox.IsZero() {
			return fiber.NewError(fiber.StatusBadRequest, "bbox is required")
		}

		res, err := service.SearchCatalog(c.UserContext(), q)
		if err != nil {
			return upstreamError(err)
		}
		if !res.OK {
			return upstreamFailure(c, res.Outcome)
		}

		records, err := res.Records()
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		return c.JSON(fiber.Map{
			"ok":         true,
			"statusCode": res.StatusCode,
			"count":      len(records),
			"records":    records,
		})
	})

	v1.Post("/analysis/run", func(c *fiber.Ctx) error {
		var plan airquality.AnalysisPlan
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&plan); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
			}
		}
		plan = withDefaults(plan, defaults)
		if err := validate.Struct(plan); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		report, err := service.RunAnalysis(c.UserContext(), plan)
		if errors.Is(err, airquality.ErrNoSensorData) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
				"sensors": report.Sensors,
			})
		}
		if err != nil {
			return upstreamError(err)
		}
		return c.JSON(report)
	})

	v1.Get("/analysis/latest", func(c *fiber.Ctx) error {
		plan, err := planFromQuery(c, defaults)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		report, err := service.GetLatest(plan)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no analysis for requested plan")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch analysis")
		}
		return c.JSON(report)
	})

	v1.Get("/analysis/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c, defaults); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		reports, err := service.GetRange(req.Plan, req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no analysis history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch analysis history")
		}

		return c.JSON(fiber.Map{
			"plan":    req.Plan,
			"from":    req.From,
			"to":      req.To,
			"reports": reports,
		})
	})
}

// upstreamFailure reports a non-200 upstream answer.
func upstreamFailure(c *fiber.Ctx, o airquality.Outcome) error {
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
		"error":          true,
		"message":        o.Message,
		"upstreamStatus": o.StatusCode,
	})
}

// upstreamError maps provider and input errors to HTTP errors.
func upstreamError(err error) error {
	switch {
	case errors.Is(err, airquality.ErrInvalidDate),
		errors.Is(err, airquality.ErrInvalidRange),
		errors.Is(err, airquality.ErrInvalidBBox):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, providers.ErrMissingAPIKey):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, providers.ErrCircuitOpen):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, err.Error())
	default:
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
}

func withDefaults(plan, defaults airquality.AnalysisPlan) airquality.AnalysisPlan {
	if len(plan.SensorIDs) == 0 {
		plan.SensorIDs = append([]int(nil), defaults.SensorIDs...)
	}
	if plan.Fields == "" {
		plan.Fields = defaults.Fields
	}
	if plan.Start == "" {
		plan.Start = defaults.Start
	}
	if plan.End == "" {
		plan.End = defaults.End
	}
	return plan
}

// planFromQuery reads sensorIds, fields, start and end, falling back to
// defaults for any that are missing.
func planFromQuery(c *fiber.Ctx, defaults airquality.AnalysisPlan) (airquality.AnalysisPlan, error) {
	var plan airquality.AnalysisPlan
	if raw := c.Query("sensorIds"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return plan, errors.New("sensorIds must be comma separated integers")
			}
			plan.SensorIDs = append(plan.SensorIDs, id)
		}
	}
	plan.Fields = c.Query("fields")
	plan.Start = c.Query("start")
	plan.End = c.Query("end")

	plan = withDefaults(plan, defaults)
	if err := validate.Struct(plan); err != nil {
		return plan, err
	}
	return plan, nil
}

// historyQuery holds query parameters for the analysis history endpoint.
type historyQuery struct {
	Plan airquality.AnalysisPlan
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx, defaults airquality.AnalysisPlan) error {
	plan, err := planFromQuery(c, defaults)
	if err != nil {
		return err
	}
	h.Plan = plan

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
