package server

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zalepa/crimemap/crime"
	"github.com/zalepa/crimemap/loader"
	"github.com/zalepa/crimemap/render"
)

const defaultTop = 8

// errBadRequest marks query errors that map to 400.
var errBadRequest = errors.New("bad request")

// query is a parsed dashboard request.
type query struct {
	bundle    *loader.Bundle
	sel       crime.Selection
	metric    render.Metric
	groupName string
	group     crime.GroupBy
	top       int
}

// parseQuery reads the shared query parameters. Unknown municipalities
// return loader.ErrUnknownMunicipality; anything else malformed wraps
// errBadRequest.
func parseQuery(v url.Values, catalog *loader.Catalog) (query, error) {
	var q query

	b, err := catalog.Bundle(v.Get("municipality"))
	if err != nil {
		return q, err
	}
	q.bundle = b
	if !b.Metro {
		q.sel.Municipality = b.Name
	}

	if q.sel.Start, err = parseDay(v.Get("from")); err != nil {
		return q, fmt.Errorf("%w: from: %v", errBadRequest, err)
	}
	if q.sel.End, err = parseDay(v.Get("to")); err != nil {
		return q, fmt.Errorf("%w: to: %v", errBadRequest, err)
	}
	if err := q.sel.Validate(); err != nil {
		return q, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	// Categories are short macro names and may be comma-separated; crime
	// descriptions can contain commas, so they are only repeatable.
	for _, raw := range v["category"] {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				q.sel.Categories = append(q.sel.Categories, c)
			}
		}
	}
	for _, c := range v["crime"] {
		if c = strings.TrimSpace(c); c != "" {
			q.sel.Crimes = append(q.sel.Crimes, c)
		}
	}

	if q.metric, err = render.ParseMetric(v.Get("metric")); err != nil {
		return q, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	q.groupName = strings.ToLower(strings.TrimSpace(v.Get("group")))
	switch q.groupName {
	case "", "category":
		q.groupName, q.group = "category", crime.ByCategory
	case "neighborhood":
		q.group = crime.ByNeighborhood
	case "total":
		q.group = crime.Total
	default:
		return q, fmt.Errorf("%w: unknown group %q (want category, neighborhood or total)", errBadRequest, q.groupName)
	}

	q.top = defaultTop
	if s := v.Get("top"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return q, fmt.Errorf("%w: top must be a non-negative integer", errBadRequest)
		}
		q.top = n
	}
	return q, nil
}

func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("want YYYY-MM-DD, got %q", s)
	}
	return t, nil
}

// incidents applies the query's selection to its bundle.
func (q query) incidents() []crime.Incident {
	return crime.Filter(q.bundle.Incidents, q.sel)
}
