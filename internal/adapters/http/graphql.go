package http

import (
	"fmt"
	"math"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/overlaymap/internal/core/domain"
	"github.com/samirrijal/overlaymap/internal/core/usecases"
	"github.com/samirrijal/overlaymap/internal/pkg/geospatial"
)

// viewportArgs are shared by every viewport query.
func viewportArgs(withSport bool) graphql.FieldConfigArgument {
	args := graphql.FieldConfigArgument{
		"nwLat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
		"nwLng": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
		"seLat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
		"seLng": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
		"zoom":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
	}
	if withSport {
		args["sport"] = &graphql.ArgumentConfig{Type: graphql.String}
	}
	return args
}

func viewportFromArgs(args map[string]interface{}) (domain.Viewport, error) {
	b := domain.Bounds{
		MinLat: args["seLat"].(float64),
		MinLon: args["nwLng"].(float64),
		MaxLat: args["nwLat"].(float64),
		MaxLon: args["seLng"].(float64),
	}
	zoom := args["zoom"].(float64)
	if math.IsNaN(zoom) {
		return domain.Viewport{}, fmt.Errorf("%w: zoom is not a number", domain.ErrInvalidViewport)
	}
	vp := domain.ViewportFromBounds(b, zoom)
	return vp, vp.Validate()
}

// buildSchema creates the GraphQL schema wired to the overlay fetchers.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	tileType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Tile",
		Fields: graphql.Fields{
			"x": &graphql.Field{Type: graphql.Int},
			"y": &graphql.Field{Type: graphql.Int},
			"z": &graphql.Field{Type: graphql.Int},
		},
	})

	geometryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Geometry",
		Fields: graphql.Fields{
			"id":        &graphql.Field{Type: graphql.String},
			"category":  &graphql.Field{Type: graphql.String},
			"kind":      &graphql.Field{Type: graphql.String},
			"name":      &graphql.Field{Type: graphql.String},
			"image_url": &graphql.Field{Type: graphql.String},
			"points":    &graphql.Field{Type: graphql.NewList(geoPointType)},
			"rings":     &graphql.Field{Type: graphql.NewList(graphql.NewList(geoPointType))},
		},
	})

	datasetType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Dataset",
		Fields: graphql.Fields{
			"category":     &graphql.Field{Type: graphql.String},
			"sport":        &graphql.Field{Type: graphql.String},
			"failed_tiles": &graphql.Field{Type: graphql.Int},
			"items":        &graphql.Field{Type: graphql.NewList(geometryType)},
		},
	})

	layerType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RenderLayer",
		Fields: graphql.Fields{
			"id":        &graphql.Field{Type: graphql.String},
			"category":  &graphql.Field{Type: graphql.String},
			"item_id":   &graphql.Field{Type: graphql.String},
			"source_id": &graphql.Field{Type: graphql.String},
			"style": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return string(p.Source.(domain.RenderLayer).Style.Kind), nil
				},
			},
			"fingerprint": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return fmt.Sprintf("%016x", p.Source.(domain.RenderLayer).Fingerprint), nil
				},
			},
		},
	})

	fetch := func(cat domain.Category) graphql.FieldResolveFn {
		return func(p graphql.ResolveParams) (interface{}, error) {
			f := deps.fetcher(cat)
			if f == nil {
				return nil, fmt.Errorf("overlay category %s is not enabled", cat)
			}
			vp, err := viewportFromArgs(p.Args)
			if err != nil {
				return nil, err
			}
			sport := deps.Defaults.Sport.OrDefault()
			if s, ok := p.Args["sport"].(string); ok && s != "" {
				if sport, err = domain.ParseSport(s); err != nil {
					return nil, err
				}
			}
			return f.Fetch(p.Context, vp, sport), nil
		}
	}

	layersArgs := viewportArgs(true)
	layersArgs["category"] = &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"tiles": &graphql.Field{
				Type:        graphql.NewList(tileType),
				Description: "Tiles covering a viewport, column by column from the north-west",
				Args:        viewportArgs(false),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					vp, err := viewportFromArgs(p.Args)
					if err != nil {
						return nil, err
					}
					return geospatial.ResolveViewport(vp)
				},
			},
			"segments": &graphql.Field{
				Type:        datasetType,
				Description: "Ranked route segments inside a viewport",
				Args:        viewportArgs(true),
				Resolve:     fetch(domain.CategorySegment),
			},
			"trailPoints": &graphql.Field{
				Type:        datasetType,
				Description: "Trail points decoded from vector tiles",
				Args:        viewportArgs(false),
				Resolve:     fetch(domain.CategoryTrailPoint),
			},
			"heatTiles": &graphql.Field{
				Type:        datasetType,
				Description: "Density imagery tiles for a viewport",
				Args:        viewportArgs(true),
				Resolve:     fetch(domain.CategoryHeatTile),
			},
			"layers": &graphql.Field{
				Type:        graphql.NewList(layerType),
				Description: "Render layers a fresh surface would add, in draw order",
				Args:        layersArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					cat, err := domain.ParseCategory(p.Args["category"].(string))
					if err != nil {
						return nil, err
					}
					res, err := fetch(cat)(p)
					if err != nil {
						return nil, err
					}
					ds := res.(domain.Dataset)
					return usecases.Reconcile(cat, ds, nil).ToAdd, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
