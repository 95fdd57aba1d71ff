package booking_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bookingHandler "github.com/healthbridge/booking-api/internal/handler/booking"
	"github.com/healthbridge/booking-api/internal/model"
	"github.com/healthbridge/booking-api/internal/repository/memory"
	"github.com/healthbridge/booking-api/internal/service/availability"
	"github.com/healthbridge/booking-api/internal/service/booking"
	"github.com/healthbridge/booking-api/pkg/logger"
)

type testEnv struct {
	engine *gin.Engine
	store  *memory.Store
	doctor *model.Doctor
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	availabilitySvc := availability.NewService(store.Appointments(), store, store.Doctors(), log, nil, 30*time.Minute, 5*time.Minute)
	svc := booking.NewService(availabilitySvc, store.Appointments(), store, store, store.Doctors(), nil, log, nil)

	doctor := &model.Doctor{Name: "Dr. Nkosi", ConsultationFee: 90, Verified: true, Active: true}
	store.AddDoctor(doctor)

	start := time.Date(2026, 10, 1, 9, 0, 0, 0, time.Local)
	store.AddSlot(&model.SlotInstance{
		DoctorID:    doctor.ID,
		SlotDate:    start,
		StartTime:   start,
		EndTime:     start.Add(30 * time.Minute),
		Mode:        model.ConsultationModeInPerson,
		MaxBookings: 1,
	})

	engine := gin.New()
	bookingHandler.NewHandler(svc).RegisterRoutes(engine.Group("/api/v1"))

	return &testEnv{engine: engine, store: store, doctor: doctor}
}

func (e *testEnv) post(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func bookingRequest(doctorID uuid.UUID) map[string]interface{} {
	return map[string]interface{}{
		"patient_id":  uuid.New().String(),
		"doctor_id":   doctorID.String(),
		"hospital_id": uuid.New().String(),
		"date":        "2026-10-01",
		"time":        "09:00",
		"mode":        "in_person",
	}
}

func TestCreateBookingEndpoint(t *testing.T) {
	env := setup(t)

	w := env.post(t, "/api/v1/bookings", bookingRequest(env.doctor.ID))
	assert.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Status string            `json:"status"`
		Data   model.Appointment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, model.AppointmentStatusPendingPayment, resp.Data.Status)

	// The same slot is now rejected with a machine-readable reason.
	w = env.post(t, "/api/v1/bookings", bookingRequest(env.doctor.ID))
	assert.Equal(t, http.StatusConflict, w.Code)

	var rejection struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rejection))
	assert.Equal(t, "rejected", rejection.Status)
	assert.NotEmpty(t, rejection.Reason)
}

func TestCreateBookingEndpointValidation(t *testing.T) {
	env := setup(t)

	body := bookingRequest(env.doctor.ID)
	delete(body, "patient_id")

	w := env.post(t, "/api/v1/bookings", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentEventEndpoint(t *testing.T) {
	env := setup(t)

	w := env.post(t, "/api/v1/bookings", bookingRequest(env.doctor.ID))
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Data model.Appointment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = env.post(t, "/api/v1/payments/events", map[string]interface{}{
		"appointment_id": created.Data.ID.String(),
		"status":         "succeeded",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/bookings/%s", created.Data.ID), nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched struct {
		Data model.Appointment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, model.AppointmentStatusConfirmed, fetched.Data.Status)
}

func TestPaymentEventEndpointRejectsUnknownStatus(t *testing.T) {
	env := setup(t)

	w := env.post(t, "/api/v1/payments/events", map[string]interface{}{
		"appointment_id": uuid.New().String(),
		"status":         "maybe",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelBookingEndpoint(t *testing.T) {
	env := setup(t)

	w := env.post(t, "/api/v1/bookings", bookingRequest(env.doctor.ID))
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Data model.Appointment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = env.post(t, fmt.Sprintf("/api/v1/bookings/%s/cancel", created.Data.ID), map[string]interface{}{
		"reason": "schedule conflict",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// Cancelling again is a client error, not a crash.
	w = env.post(t, fmt.Sprintf("/api/v1/bookings/%s/cancel", created.Data.ID), map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
