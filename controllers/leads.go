package controllers

import (
	"fmt"
	"strings"
	"time"

	"prepxiq_go/config"
	"prepxiq_go/models"
	"prepxiq_go/services"
	"prepxiq_go/utils"

	"github.com/gofiber/fiber/v2"
)

// LeadController exposes the admission funnel.
type LeadController struct {
	svc *services.LeadService
}

func NewLeadController(svc *services.LeadService) *LeadController {
	return &LeadController{svc: svc}
}

func parseLeadFilter(c *fiber.Ctx) (services.LeadFilter, error) {
	var f services.LeadFilter
	if raw := c.Query("stage"); raw != "" {
		stage, err := models.ParseLeadStage(raw)
		if err != nil {
			return f, err
		}
		f.Stage = stage
	}
	if raw := c.Query("lead_source"); raw != "" {
		src, err := models.ParseLeadSource(raw)
		if err != nil {
			return f, err
		}
		f.LeadSource = src
	}
	var err error
	if f.CounselorID, err = queryUint(c, "counselor_id"); err != nil {
		return f, err
	}
	if f.DateFrom, err = queryDate(c, "date_from"); err != nil {
		return f, err
	}
	if f.DateTo, err = queryDate(c, "date_to"); err != nil {
		return f, err
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return f, utils.ValidationError("date_to must not be before date_from")
	}
	f.Search = utils.SanitizeString(c.Query("search"))
	f.FollowUpToday = c.QueryBool("follow_up_today")
	f.OverdueFollowUp = c.QueryBool("overdue_follow_up")
	return f, nil
}

// GetLeads GET /api/leads
func (lc *LeadController) GetLeads(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return respondError(c, err)
	}
	f, err := parseLeadFilter(c)
	if err != nil {
		return respondError(c, err)
	}
	page, err := lc.svc.ListLeads(c.UserContext(), actor, f, utils.ParsePageParams(c, "created_at", utils.ListPageOptions))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// GetLead GET /api/leads/:id
func (lc *LeadController) GetLead(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	lead, err := lc.svc.GetLead(c.UserContext(), actor, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"lead": lead, "allowed_next": lead.Stage.AllowedNext()})
}

// CreateLead POST /api/leads
func (lc *LeadController) CreateLead(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return respondError(c, err)
	}
	var in services.CreateLeadInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	lead, err := lc.svc.CreateLead(c.UserContext(), actor, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Lead created successfully", "lead": lead})
}

// UpdateLead PUT /api/leads/:id
func (lc *LeadController) UpdateLead(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var in services.UpdateLeadInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	lead, err := lc.svc.UpdateLead(c.UserContext(), actor, id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Lead updated successfully", "lead": lead})
}

// UpdateStage PATCH /api/leads/:id/stage
func (lc *LeadController) UpdateStage(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req struct {
		Stage string `json:"stage" validate:"required"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}
	lead, err := lc.svc.UpdateLeadStage(c.UserContext(), actor, id, req.Stage)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Stage updated successfully", "lead": lead})
}

// AssignCounselor PATCH /api/leads/:id/counselor. A null id unassigns.
func (lc *LeadController) AssignCounselor(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req struct {
		CounselorID *uint `json:"counselor_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	lead, err := lc.svc.AssignCounselor(c.UserContext(), actor, id, req.CounselorID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Counselor assigned successfully", "lead": lead})
}

// SetFollowUp PATCH /api/leads/:id/follow-up. An empty date clears it.
func (lc *LeadController) SetFollowUp(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req struct {
		FollowUpDate string `json:"follow_up_date"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	var date *time.Time
	if raw := strings.TrimSpace(req.FollowUpDate); raw != "" {
		t, err := utils.ParseDateLocal(raw, config.AppConfig.Location())
		if err != nil {
			return respondError(c, utils.ValidationError("follow_up_date must be a date in YYYY-MM-DD format"))
		}
		date = &t
	}
	lead, err := lc.svc.SetFollowUpDate(c.UserContext(), actor, id, date)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Follow-up date updated", "lead": lead})
}

// ConvertLead POST /api/leads/:id/convert
func (lc *LeadController) ConvertLead(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var in services.ConvertInput
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}
	studentID, err := lc.svc.ConvertLeadToStudent(c.UserContext(), actor, id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Lead converted to student", "student_id": studentID})
}

// MarkLost POST /api/leads/:id/lost
func (lc *LeadController) MarkLost(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}
	lead, err := lc.svc.MarkLeadAsLost(c.UserContext(), actor, id, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Lead marked as lost", "lead": lead})
}

// DeleteLead DELETE /api/leads/:id
func (lc *LeadController) DeleteLead(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := lc.svc.DeleteLead(c.UserContext(), actor, id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Lead deleted successfully"})
}

// CheckPhone GET /api/leads/check-phone?phone=&exclude_id=
func (lc *LeadController) CheckPhone(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return respondError(c, err)
	}
	exclude, err := queryUint(c, "exclude_id")
	if err != nil {
		return respondError(c, err)
	}
	var excludeID uint
	if exclude != nil {
		excludeID = *exclude
	}
	matches, err := lc.svc.CheckDuplicatePhone(c.UserContext(), actor, c.Query("phone"), excludeID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"duplicate": matches.Any(), "matches": matches})
}

// GetStats GET /api/leads/stats
func (lc *LeadController) GetStats(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return respondError(c, err)
	}
	f, err := parseLeadFilter(c)
	if err != nil {
		return respondError(c, err)
	}
	stats, err := lc.svc.GetLeadStats(c.UserContext(), actor, f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

// GetTrend GET /api/leads/trend?months=6
func (lc *LeadController) GetTrend(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return respondError(c, err)
	}
	points, err := lc.svc.GetMonthlyTrend(c.UserContext(), actor, c.QueryInt("months", 6))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"trend": points})
}

func exportFileName(ext string) string {
	return fmt.Sprintf("leads_%s.%s", time.Now().In(config.AppConfig.Location()).Format("20060102_150405"), ext)
}

// ExportCSV GET /api/leads/export.csv
func (lc *LeadController) ExportCSV(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return respondError(c, err)
	}
	f, err := parseLeadFilter(c)
	if err != nil {
		return respondError(c, err)
	}
	body, err := lc.svc.ExportLeadsCSV(c.UserContext(), actor, f, utils.ParsePageParams(c, "created_at", utils.ExportPageOptions))
	if err != nil {
		return respondError(c, err)
	}
	c.Attachment(exportFileName("csv"))
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	return c.Send(body)
}

// ExportXLSX GET /api/leads/export.xlsx
func (lc *LeadController) ExportXLSX(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return respondError(c, err)
	}
	f, err := parseLeadFilter(c)
	if err != nil {
		return respondError(c, err)
	}
	body, err := lc.svc.ExportLeadsXLSX(c.UserContext(), actor, f, utils.ParsePageParams(c, "created_at", utils.ExportPageOptions))
	if err != nil {
		return respondError(c, err)
	}
	c.Attachment(exportFileName("xlsx"))
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	return c.Send(body)
}
