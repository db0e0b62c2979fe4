package http

import (
	"fmt"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/overlaymap/internal/core/domain"
	"github.com/samirrijal/overlaymap/internal/core/ports"
	"github.com/samirrijal/overlaymap/internal/core/usecases"
	"github.com/samirrijal/overlaymap/internal/pkg/decode"
	"github.com/samirrijal/overlaymap/internal/pkg/geospatial"
)

const (
	defaultTileLimit = 256
	maxTileLimit     = 1024
	maxPolylinePts   = 50000
)

// viewportParams are the query parameters describing a viewport.
var viewportParams = [...]string{"nw_lat", "nw_lng", "se_lat", "se_lng", "zoom"}

// parseViewport reads nw_lat, nw_lng, se_lat, se_lng and zoom. The zoom may be
// fractional and is floored.
func parseViewport(c *fiber.Ctx) (domain.Viewport, error) {
	var v [len(viewportParams)]float64
	for i, name := range viewportParams {
		raw := c.Query(name)
		if raw == "" {
			return domain.Viewport{}, fmt.Errorf("%s is required", name)
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return domain.Viewport{}, fmt.Errorf("%s must be a number", name)
		}
		v[i] = f
	}

	b := domain.Bounds{MinLat: v[2], MinLon: v[1], MaxLat: v[0], MaxLon: v[3]}
	vp := domain.ViewportFromBounds(b, v[4])
	if err := vp.Validate(); err != nil {
		return domain.Viewport{}, err
	}
	return vp, nil
}

func parseSport(c *fiber.Ctx, def domain.Sport) (domain.Sport, error) {
	raw := c.Query("sport")
	if raw == "" {
		return def.OrDefault(), nil
	}
	return domain.ParseSport(raw)
}

// TilesHandler lists the tiles covering a viewport, column by column from the
// north-west tile.
func TilesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		vp, err := parseViewport(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		tiles, err := geospatial.ResolveViewport(vp)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		pg := paginate(c, len(tiles), defaultTileLimit, maxTileLimit)
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{
			Data:       tiles[pg.Offset:pg.end()],
			Pagination: pg,
		})
	}
}

type overlayQuery struct {
	fetcher ports.OverlayFetcher
	vp      domain.Viewport
	sport   domain.Sport
}

// parseOverlayQuery resolves the category fetcher, viewport and sport of an
// overlay request.
func parseOverlayQuery(c *fiber.Ctx, deps *Dependencies) (overlayQuery, *APIError) {
	var q overlayQuery
	cat, err := domain.ParseCategory(c.Params("category"))
	if err != nil {
		return q, &APIError{Status: fiber.StatusNotFound, Code: "not_found", Message: err.Error()}
	}
	if q.fetcher = deps.fetcher(cat); q.fetcher == nil {
		return q, &APIError{Status: fiber.StatusNotFound, Code: "not_found",
			Message: "overlay category " + string(cat) + " is not enabled"}
	}
	if q.vp, err = parseViewport(c); err != nil {
		return q, &APIError{Status: fiber.StatusBadRequest, Code: "bad_request", Message: err.Error()}
	}
	if q.sport, err = parseSport(c, deps.Defaults.Sport); err != nil {
		return q, &APIError{Status: fiber.StatusBadRequest, Code: "bad_request", Message: err.Error()}
	}
	return q, nil
}

// OverlayHandler fetches the dataset of one category for a viewport. Failed
// tiles are reported in failed_tiles; the remaining items are returned.
func OverlayHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, apiErr := parseOverlayQuery(c, deps)
		if apiErr != nil {
			return newError(c, apiErr.Status, apiErr.Code, apiErr.Message)
		}

		ds := q.fetcher.Fetch(c.UserContext(), q.vp, q.sport)
		if ds.FailedTiles > 0 {
			LoggerFromCtx(c.UserContext()).Warn("partial overlay dataset",
				"category", ds.Category, "failed_tiles", ds.FailedTiles)
		}
		return c.JSON(ds)
	}
}

// OverlayLayersHandler returns the render layers a fresh surface would add
// for the dataset, in draw order.
func OverlayLayersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, apiErr := parseOverlayQuery(c, deps)
		if apiErr != nil {
			return newError(c, apiErr.Status, apiErr.Code, apiErr.Message)
		}

		ds := q.fetcher.Fetch(c.UserContext(), q.vp, q.sport)
		plan := usecases.Reconcile(ds.Category, ds, nil)
		layers := plan.ToAdd
		if layers == nil {
			layers = []domain.RenderLayer{}
		}
		return c.JSON(fiber.Map{
			"category":     ds.Category,
			"viewport":     ds.FetchedAt,
			"failed_tiles": ds.FailedTiles,
			"layers":       layers,
		})
	}
}

type polylineRequest struct {
	Polyline string            `json:"polyline"`
	Points   []domain.GeoPoint `json:"points"`
}

// DecodePolylineHandler decodes {"polyline": "..."} into points.
func DecodePolylineHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req polylineRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		points, err := decode.DecodePolyline(req.Polyline)
		if err != nil {
			return errUnprocessable(c, err.Error())
		}
		return c.JSON(fiber.Map{
			"points":   points,
			"count":    len(points),
			"length_m": geospatial.PathLength(points),
		})
	}
}

// EncodePolylineHandler encodes {"points": [{"lat":..,"lon":..}]} as a polyline.
func EncodePolylineHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req polylineRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Points) > maxPolylinePts {
			return errBadRequest(c, fmt.Sprintf("too many points (max %d)", maxPolylinePts))
		}
		for i, p := range req.Points {
			if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
				return errBadRequest(c, fmt.Sprintf("point %d out of range", i))
			}
		}

		return c.JSON(fiber.Map{
			"polyline": decode.EncodePolyline(req.Points),
			"count":    len(req.Points),
		})
	}
}
