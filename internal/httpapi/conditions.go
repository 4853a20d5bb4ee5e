package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"call-relay/internal/callflow"
	"call-relay/internal/calls"
	"call-relay/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	ConditionReminder   = "reminder"
	ConditionScheduling = "scheduling"
	ConditionCall       = "call"
)

const (
	reminderText         = "This is a reminder for your upcoming appointment!"
	defaultPreferredTime = "10:00 AM"
)

// conditionTypes accepts either a single string or a list of strings.
type conditionTypes []string

func (ct *conditionTypes) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*ct = conditionTypes{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return errors.New("conditionType must be a string or a list of strings")
	}
	*ct = many
	return nil
}

type userData struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	CalendarID    string `json:"calendarId"`
	PreferredDate string `json:"preferredDate"`
	PreferredTime string `json:"preferredTime"`
}

type checkConditionsRequest struct {
	ConditionType conditionTypes `json:"conditionType"`
	UserData      userData       `json:"userData"`
}

type conditionResult struct {
	Condition string `json:"condition"`
	Status    string `json:"status"`
	SID       string `json:"sid,omitempty"`
	Error     string `json:"error,omitempty"`

	Record map[string]any `json:"record,omitempty"`
}

// CheckConditions runs each requested follow-up action for a lead and reports
// one result per condition. Unknown conditions are skipped.
func (h Handlers) CheckConditions(c *gin.Context) {
	var req checkConditionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(req.ConditionType) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "conditionType is required"})
		return
	}
	log := logger.FromGin(c)

	results := make([]conditionResult, 0, len(req.ConditionType))
	for _, raw := range req.ConditionType {
		cond := strings.ToLower(strings.TrimSpace(raw))
		var res conditionResult
		switch cond {
		case ConditionReminder:
			res = h.sendSMS(c, cond, req.UserData.Phone, reminderText)
		case ConditionScheduling:
			res = h.sendSMS(c, cond, req.UserData.Phone, h.schedulingText(req.UserData))
		case ConditionCall:
			res = h.placeCall(c, req.UserData)
		default:
			log.Warn("unknown condition skipped", "condition", raw)
			res = conditionResult{Condition: raw, Status: "skipped", Error: "unknown condition"}
		}
		results = append(results, res)
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h Handlers) schedulingText(u userData) string {
	date := strings.TrimSpace(u.PreferredDate)
	if date == "" {
		date = h.now().AddDate(0, 0, 1).Format("2006-01-02")
	}
	t := strings.TrimSpace(u.PreferredTime)
	if t == "" {
		t = defaultPreferredTime
	}
	return fmt.Sprintf("Your appointment is scheduled for %s at %s", date, t)
}

func (h Handlers) sendSMS(c *gin.Context, cond, rawPhone, body string) conditionResult {
	res := conditionResult{Condition: cond}
	if h.SMS == nil {
		res.Status, res.Error = "failed", "sms not configured"
		return res
	}
	to, err := h.Phone.Normalize(rawPhone)
	if err != nil {
		res.Status, res.Error = "failed", err.Error()
		return res
	}

	ctx := c.Request.Context()
	sid, err := h.SMS.SendSMS(ctx, to, body)
	if err != nil {
		logger.FromGin(c).Error("sms send failed", "condition", cond, "err", err)
		res.Status, res.Error = "failed", err.Error()
		return res
	}
	if h.Audit != nil {
		if err := h.Audit.LogSMS(ctx, sid, cond, to); err != nil {
			logger.FromGin(c).Warn("sms audit failed", "err", err)
		}
	}
	res.Status, res.SID = "sent", sid
	return res
}

func (h Handlers) placeCall(c *gin.Context, u userData) conditionResult {
	res := conditionResult{Condition: ConditionCall}
	if h.Calls == nil {
		res.Status, res.Error = "failed", "call runner not configured"
		return res
	}
	lead := calls.Lead{Name: u.Name, Phone: u.Phone, Email: u.Email}
	if u.CalendarID != "" {
		lead.Correlation = map[string]string{"calendarId": u.CalendarID}
	}

	fr, err := h.Calls.Run(c.Request.Context(), callflow.RunRequest{Lead: lead})
	if err != nil {
		res.Status, res.Error = "failed", err.Error()
		res.Record = fr.Record
		return res
	}
	res.Status, res.Record = "completed", fr.Record
	return res
}
