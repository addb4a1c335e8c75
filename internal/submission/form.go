package submission

import (
	"errors"
	"net/url"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hellof20/mihoyo-cs-tickets/internal/catalog"
	"github.com/hellof20/mihoyo-cs-tickets/pkg/models"
)

// Field names used as keys of ValidationError.Fields.
const (
	FieldBusiness  = "business"
	FieldDateRange = "dateRange"
	FieldLang      = "lang"
)

// Form is the raw submission form as posted by the browser or CLI.
type Form struct {
	Business  string `validate:"required,business"`
	Lang      string `validate:"required,language"`
	StartDate string `validate:"required,ymd"`
	EndDate   string `validate:"required,ymd"`
}

// FormFromValues reads a Form from posted form values.
func FormFromValues(v url.Values) Form {
	return Form{
		Business:  strings.TrimSpace(v.Get("business")),
		Lang:      strings.TrimSpace(v.Get("lang")),
		StartDate: strings.TrimSpace(v.Get("startDate")),
		EndDate:   strings.TrimSpace(v.Get("endDate")),
	}
}

// ValidationError reports form fields that failed client-side checks.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return strings.Join(msgs, "; ")
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validator checks forms against a catalog.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds a Validator for the options in cat.
func NewValidator(cat *catalog.Catalog) *Validator {
	v := validator.New()
	_ = v.RegisterValidation("business", func(fl validator.FieldLevel) bool {
		return cat.HasBusiness(fl.Field().String())
	})
	_ = v.RegisterValidation("language", func(fl validator.FieldLevel) bool {
		return cat.HasLanguage(fl.Field().String())
	})
	_ = v.RegisterValidation("ymd", func(fl validator.FieldLevel) bool {
		_, err := models.ParseDate(fl.Field().String())
		return err == nil
	})
	v.RegisterStructValidation(dateOrder, Form{})
	return &Validator{validate: v}
}

// dateOrder rejects a range whose start falls after its end.
func dateOrder(sl validator.StructLevel) {
	f := sl.Current().Interface().(Form)
	start, err1 := models.ParseDate(f.StartDate)
	end, err2 := models.ParseDate(f.EndDate)
	if err1 != nil || err2 != nil {
		return
	}
	if start.After(end.Time) {
		sl.ReportError(f.StartDate, "StartDate", "StartDate", "order", "")
	}
}

// Validate checks f and converts it to a request. It never touches the
// network. A form with no start date is rejected like any other
// incomplete form.
func (v *Validator) Validate(f Form) (models.ClusterRequest, error) {
	err := v.validate.Struct(f)
	if err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return models.ClusterRequest{}, err
		}
		out := &ValidationError{Fields: make(map[string]string)}
		for _, fe := range verrs {
			field, msg := describe(fe, f)
			if _, seen := out.Fields[field]; !seen {
				out.Fields[field] = msg
			}
		}
		return models.ClusterRequest{}, out
	}

	start, _ := models.ParseDate(f.StartDate)
	end, _ := models.ParseDate(f.EndDate)
	return models.ClusterRequest{
		Business:  f.Business,
		StartDate: start,
		EndDate:   end,
		Lang:      f.Lang,
	}, nil
}

func describe(fe validator.FieldError, f Form) (string, string) {
	switch fe.StructField() {
	case "Business":
		if fe.Tag() == "required" {
			return FieldBusiness, "Please select business!"
		}
		return FieldBusiness, "Unknown business: " + f.Business
	case "Lang":
		if fe.Tag() == "required" {
			return FieldLang, "Please select language!"
		}
		return FieldLang, "Unknown language: " + f.Lang
	default:
		switch fe.Tag() {
		case "required":
			return FieldDateRange, "Please select date range!"
		case "order":
			return FieldDateRange, "Start date cannot be after end date"
		default:
			return FieldDateRange, "Dates must be in YYYY-MM-DD format"
		}
	}
}
