package echoapi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/unilearn/lms/core"
	"github.com/unilearn/lms/core/attendance"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// WeekRange is the `start_week` & `end_week` query params.
type WeekRange struct {
	Start int
	End   int
}

func (wr *WeekRange) Bind(ctx echo.Context) error {
	wr.Start, wr.End = 1, 16
	var err error
	if raw := ctx.QueryParam("start_week"); raw != "" {
		if wr.Start, err = strconv.Atoi(raw); err != nil || wr.Start < 1 {
			return invalidParam("start_week", "must be a positive integer")
		}
	}
	if raw := ctx.QueryParam("end_week"); raw != "" {
		if wr.End, err = strconv.Atoi(raw); err != nil || wr.End < 1 {
			return invalidParam("end_week", "must be a positive integer")
		}
	}
	if wr.End > attendance.MaxWeek {
		return invalidParam("end_week", fmt.Sprintf("must not be after week %d", attendance.MaxWeek))
	}
	if wr.End < wr.Start {
		return invalidParam("end_week", "must not be before start_week")
	}
	return nil
}

// DateRange is the `date_from` & `date_to` query params (YYYY-MM-DD).
type DateRange struct {
	From string
	To   string
}

func (dr *DateRange) Bind(ctx echo.Context, filter *attendance.QueryFilter) error {
	dr.From = ctx.QueryParam("date_from")
	dr.To = ctx.QueryParam("date_to")
	if dr.From != "" {
		day, err := attendance.ParseDay(dr.From)
		if err != nil {
			return invalidParam("date_from", "must be a valid date (YYYY-MM-DD)")
		}
		filter.DateFrom = day
	}
	if dr.To != "" {
		day, err := attendance.ParseDay(dr.To)
		if err != nil {
			return invalidParam("date_to", "must be a valid date (YYYY-MM-DD)")
		}
		filter.DateTo = day
	}
	return nil
}

func invalidParam(name, msg string) error {
	return core.NewValidationError(nil, core.FieldError{Field: name, Error: msg})
}
