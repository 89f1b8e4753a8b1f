package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bookkeeper/internal/core"

	"github.com/shopspring/decimal"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// QueryError reports a malformed query or path parameter.
type QueryError struct {
	Param string
	Value string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Param, e.Value)
}

// decodePayload reads a JSON object body. Numbers are kept as json.Number so
// amounts keep their exact decimal text.
func decodePayload(r *http.Request) (core.Payload, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()

	var p core.Payload
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("request body is required")
		}
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if p == nil {
		return nil, errors.New("request body must be a JSON object")
	}
	return p, nil
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &QueryError{Param: "id", Value: raw}
	}
	return id, nil
}

// parseOptionalID reads a positive id. Empty and "all" mean no constraint.
func parseOptionalID(q url.Values, param string) (int64, error) {
	v := strings.TrimSpace(q.Get(param))
	if v == "" || v == "all" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, &QueryError{Param: param, Value: v}
	}
	return id, nil
}

func parseOptionalDate(q url.Values, param string, loc *time.Location) (*core.Date, error) {
	v := strings.TrimSpace(q.Get(param))
	if v == "" {
		return nil, nil
	}
	d, err := core.ParseDate(v, loc)
	if err != nil {
		return nil, &QueryError{Param: param, Value: v}
	}
	return &d, nil
}

// parseOptionalAmount reads a decimal bound rounded to cents.
func parseOptionalAmount(q url.Values, param string) (*decimal.Decimal, error) {
	v := strings.TrimSpace(q.Get(param))
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return nil, &QueryError{Param: param, Value: v}
	}
	d = d.Round(2)
	return &d, nil
}

// parseFilter builds a transaction filter from the list and report query
// parameters.
func parseFilter(q url.Values, loc *time.Location) (core.TransactionFilter, error) {
	var f core.TransactionFilter
	var err error

	if f.LocationID, err = parseOptionalID(q, "locationId"); err != nil {
		return f, err
	}
	if f.AccountID, err = parseOptionalID(q, "accountId"); err != nil {
		return f, err
	}
	if v := strings.TrimSpace(q.Get("type")); v != "" && v != "all" {
		t := core.TransactionType(strings.ToUpper(v))
		if !t.Valid() {
			return f, &QueryError{Param: "type", Value: v}
		}
		f.Type = t
	}
	f.Search = core.Sanitize(q.Get("search"))

	if f.StartDate, err = parseOptionalDate(q, "startDate", loc); err != nil {
		return f, err
	}
	if f.EndDate, err = parseOptionalDate(q, "endDate", loc); err != nil {
		return f, err
	}
	if f.MinAmount, err = parseOptionalAmount(q, "minAmount"); err != nil {
		return f, err
	}
	if f.MaxAmount, err = parseOptionalAmount(q, "maxAmount"); err != nil {
		return f, err
	}
	return f, nil
}

// parsePage reads page and limit. Missing values are left at zero for the
// service defaults.
func parsePage(q url.Values) (core.Page, error) {
	var p core.Page
	for _, param := range []struct {
		name string
		dst  *int
	}{{"page", &p.Number}, {"limit", &p.Size}} {
		v := strings.TrimSpace(q.Get(param.name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, &QueryError{Param: param.name, Value: v}
		}
		*param.dst = n
	}
	if p.Number > core.MaxPageNumber {
		return p, &QueryError{Param: "page", Value: strconv.Itoa(p.Number)}
	}
	return p, nil
}
