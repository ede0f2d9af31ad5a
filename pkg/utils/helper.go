package utils

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/lawsuit-backend/pkg/models"
)

// LogCaseHistory inserts an audit record into case_histories.
// It runs on the caller's transaction so the record commits or rolls back with
// the change it describes.
func LogCaseHistory(
	tx *gorm.DB,
	entityID, actorID uuid.UUID,
	action string,
	oldS, newS string,
	reason string,
) error {
	return tx.Create(&models.CaseHistory{
		EntityID:  entityID,
		ActorID:   actorID,
		Action:    action,
		OldStatus: oldS,
		NewStatus: newS,
		Reason:    reason,
	}).Error
}

// ParsePage reads page/pageSize query params (pageSize capped at 50, default 10).
func ParsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "10"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return
}

// Paginate counts q, then loads one page of it into dst. The load scopes
// (preloads, ordering) apply to the page query only.
func Paginate[T any](q *gorm.DB, page, size int, dst *[]T, load ...func(*gorm.DB) *gorm.DB) (models.Page[T], error) {
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return models.Page[T]{}, err
	}
	if err := q.Scopes(load...).Offset((page - 1) * size).Limit(size).Find(dst).Error; err != nil {
		return models.Page[T]{}, err
	}
	items := *dst
	if items == nil {
		items = []T{}
	}
	return models.Page[T]{
		Page:     page,
		PageSize: size,
		Total:    total,
		Pages:    int((total + int64(size) - 1) / int64(size)),
		Items:    items,
	}, nil
}

// ParamUUID parses a path param as a UUID. A malformed id can never match a
// row, so it is reported as not found.
func ParamUUID(c *fiber.Ctx, name, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusNotFound, what+" not found")
	}
	return id, nil
}

// Ordering turns an ?ordering= value such as "-created_at" into an ORDER BY
// clause on table. Fields outside allowed fall back to def.
func Ordering(raw, table string, allowed []string, def string) string {
	raw = strings.TrimSpace(raw)
	dir := "ASC"
	if strings.HasPrefix(raw, "-") {
		dir = "DESC"
		raw = raw[1:]
	}
	for _, f := range allowed {
		if f == raw {
			return table + "." + f + " " + dir
		}
	}
	return def
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// Search adds a case-insensitive LIKE over the given columns when term is set.
// Wildcards in term match literally.
func Search(q *gorm.DB, term string, cols ...string) *gorm.DB {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" || len(cols) == 0 {
		return q
	}
	like := "%" + likeEscaper.Replace(term) + "%"
	parts := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		parts[i] = "LOWER(" + col + `) LIKE ? ESCAPE '\'`
		args[i] = like
	}
	return q.Where("("+strings.Join(parts, " OR ")+")", args...)
}
