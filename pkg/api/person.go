package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/speechlytics/speech-gateway/pkg/auth"
	"github.com/speechlytics/speech-gateway/pkg/domain/person"
	gwerr "github.com/speechlytics/speech-gateway/pkg/errors"
)

// birthDateLayout is the wire format of person birth dates.
const birthDateLayout = "2006-01-02"

type createPersonRequest struct {
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	BirthDate string `json:"birthDate"`
}

type personResponse struct {
	UID        string `json:"uid"`
	Name       string `json:"name"`
	FirstName  string `json:"firstName"`
	BirthDate  string `json:"birthDate"`
	TrustScore int16  `json:"trustScore"`
}

func toPersonResponse(p person.Person) personResponse {
	return personResponse{
		UID:        p.UID.String(),
		Name:       p.Name,
		FirstName:  p.FirstName,
		BirthDate:  p.BirthDate.Format(birthDateLayout),
		TrustScore: p.TrustScore,
	}
}

// personRoutes handles the /api/person sub-paths.
type personRoutes struct {
	manager *person.Manager
	logger  *slog.Logger
}

func (pr *personRoutes) handle(ctx context.Context, req *RouteRequest) (any, *HTTPError) {
	switch {
	case req.Method == http.MethodPost && req.Path == "":
		return pr.create(ctx, req)
	case req.Method == http.MethodGet && req.Path == "":
		return pr.list(ctx, req)
	case req.Method == http.MethodGet:
		return pr.get(ctx, req)
	case req.Method == http.MethodDelete:
		return pr.delete(ctx, req)
	default:
		return nil, &ErrNotFound
	}
}

func (pr *personRoutes) create(ctx context.Context, req *RouteRequest) (any, *HTTPError) {
	if httpErr := requirePermission(req.Principal, auth.PermissionCreatePerson); httpErr != nil {
		return nil, httpErr
	}

	var input createPersonRequest
	if err := json.Unmarshal(req.Body, &input); err != nil ||
		input.Name == "" || input.FirstName == "" || input.BirthDate == "" {
		return nil, &ErrInvalidFormat
	}

	birthDate, err := time.Parse(birthDateLayout, input.BirthDate)
	if err != nil {
		httpErr := NewHTTPError(400, "InvalidBirthDate", "The birth date supplied has an invalid format")
		return nil, &httpErr
	}

	if _, err := pr.manager.Create(ctx, person.CreateInput{
		Name:      input.Name,
		FirstName: input.FirstName,
		BirthDate: birthDate,
	}); err != nil {
		return nil, pr.mapError(ctx, err)
	}
	return nil, nil
}

func (pr *personRoutes) list(ctx context.Context, req *RouteRequest) (any, *HTTPError) {
	if httpErr := requirePermission(req.Principal, auth.PermissionGetPerson); httpErr != nil {
		return nil, httpErr
	}

	page, quantity, httpErr := parsePagination(req.Query)
	if httpErr != nil {
		return nil, httpErr
	}

	persons, err := pr.manager.List(ctx, page, quantity)
	if err != nil {
		return nil, pr.mapError(ctx, err)
	}

	out := make([]personResponse, 0, len(persons))
	for _, p := range persons {
		out = append(out, toPersonResponse(p))
	}
	return out, nil
}

func (pr *personRoutes) get(ctx context.Context, req *RouteRequest) (any, *HTTPError) {
	if httpErr := requirePermission(req.Principal, auth.PermissionGetPerson); httpErr != nil {
		return nil, httpErr
	}

	uid, httpErr := parsePersonUID(req.Path)
	if httpErr != nil {
		return nil, httpErr
	}

	p, err := pr.manager.Get(ctx, uid)
	if err != nil {
		return nil, pr.mapError(ctx, err)
	}
	return toPersonResponse(p), nil
}

func (pr *personRoutes) delete(ctx context.Context, req *RouteRequest) (any, *HTTPError) {
	if httpErr := requirePermission(req.Principal, auth.PermissionDeletePerson); httpErr != nil {
		return nil, httpErr
	}

	uid, httpErr := parsePersonUID(req.Path)
	if httpErr != nil {
		return nil, httpErr
	}

	if err := pr.manager.Delete(ctx, uid); err != nil {
		return nil, pr.mapError(ctx, err)
	}
	return nil, nil
}

func parsePersonUID(raw string) (uuid.UUID, *HTTPError) {
	uid, err := uuid.Parse(raw)
	if err != nil {
		httpErr := NewHTTPError(400, "InvalidUID", "The UID you provided seems not to ba a valid UUIDv4")
		return uuid.Nil, &httpErr
	}
	return uid, nil
}

// parsePagination reads the page and quantity parameters, defaulting to
// page 0 and quantity 10. Both must be non-negative integers.
func parsePagination(query map[string]string) (page, quantity int, httpErr *HTTPError) {
	pageRaw, ok := query["page"]
	if !ok {
		pageRaw = "0"
	}
	quantityRaw, ok := query["quantity"]
	if !ok {
		quantityRaw = "10"
	}

	page, err := strconv.Atoi(pageRaw)
	if err != nil || page < 0 {
		e := NewHTTPError(400, "InvalidPageParam", "The page parameter provided must be an integer > 0")
		return 0, 0, &e
	}
	quantity, err = strconv.Atoi(quantityRaw)
	if err != nil || quantity < 0 {
		e := NewHTTPError(400, "InvalidQuantityParam", "The quantity parameter provided must be an integer > 0")
		return 0, 0, &e
	}
	return page, quantity, nil
}

// mapError converts a domain failure into the person error envelope.
// Internal detail is logged, never returned.
func (pr *personRoutes) mapError(ctx context.Context, err error) *HTTPError {
	switch {
	case gwerr.IsNotFound(err):
		e := NewHTTPError(404, "PersonNotFound", "The person requested is not found")
		return &e
	case gwerr.IsConflict(err):
		e := NewHTTPError(409, "PersonAlreadyExists", "The person you try to create already exists.")
		return &e
	default:
		pr.logger.ErrorContext(ctx, "person operation failed", "error", err)
		return &ErrInternal
	}
}
