package http

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/manvelegoyan072/bord-application/internal/model"
	"github.com/manvelegoyan072/bord-application/internal/store"
)

// listFiltersHandler returns one page of filter rules with optional
// name/type/active filters.
func listFiltersHandler(c *fiber.Ctx) error {
	st := storeFrom(c)

	filters, err := st.ListFilters(c.Context())
	if err != nil {
		loggerFrom(c).Error("failed to list filters", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(DetailResponse{Detail: "Failed to list filters"})
	}

	nameCont := strings.ToLower(c.Query("name_cont"))
	typeEq := c.Query("type_eq")
	activeEq := c.Query("active_eq")
	idEq := c.QueryInt("id_eq", 0)

	matched := make([]model.Filter, 0, len(filters))
	for _, f := range filters {
		if idEq != 0 && f.ID != int64(idEq) {
			continue
		}
		if nameCont != "" && !strings.Contains(strings.ToLower(f.Title), nameCont) {
			continue
		}
		if typeEq != "" && f.Type != typeEq {
			continue
		}
		if activeEq != "" {
			want, err := strconv.ParseBool(activeEq)
			if err != nil || f.Active != want {
				continue
			}
		}
		matched = append(matched, f)
	}

	page := c.QueryInt("page", 1)
	perPage := c.QueryInt("per_page", 10)
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 10
	}

	total := len(matched)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	short := make([]FilterShort, 0, end-start)
	for _, f := range matched[start:end] {
		short = append(short, FilterShort{ID: f.ID, Name: f.Title, Type: f.Type, Active: f.Active})
	}
	return c.JSON(FilterListResponse{Filters: short, Total: total, Page: page, PerPage: perPage})
}

func createFilterHandler(c *fiber.Ctx) error {
	st := storeFrom(c)

	var body model.Filter
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(DetailResponse{Detail: "Invalid filter data"})
	}
	if body.Title == "" || body.Type == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(DetailResponse{Detail: "Invalid filter data"})
	}

	created, err := st.CreateFilter(c.Context(), &body)
	if err != nil {
		loggerFrom(c).Error("failed to create filter", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(DetailResponse{Detail: "Failed to create filter"})
	}
	return c.JSON(created)
}

func getFilterHandler(c *fiber.Ctx) error {
	st := storeFrom(c)

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(DetailResponse{Detail: "Invalid filter id"})
	}

	f, err := st.GetFilter(c.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(DetailResponse{Detail: "Filter not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(DetailResponse{Detail: "Failed to load filter"})
	}
	return c.JSON(f)
}

func updateFilterHandler(c *fiber.Ctx) error {
	st := storeFrom(c)

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(DetailResponse{Detail: "Invalid filter id"})
	}

	var body model.Filter
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(DetailResponse{Detail: "Invalid filter data"})
	}
	body.ID = id

	updated, err := st.UpdateFilter(c.Context(), &body)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(DetailResponse{Detail: "Filter not found"})
		}
		loggerFrom(c).Error("failed to update filter", "filter_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(DetailResponse{Detail: "Failed to update filter"})
	}
	return c.JSON(updated)
}

func deleteFilterHandler(c *fiber.Ctx) error {
	st := storeFrom(c)

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(DetailResponse{Detail: "Invalid filter id"})
	}

	if err := st.DeleteFilter(c.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(DetailResponse{Detail: "Filter not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(DetailResponse{Detail: "Failed to delete filter"})
	}
	return c.JSON(StatusResponse{Status: "success"})
}
