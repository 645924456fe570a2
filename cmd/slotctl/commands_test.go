package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
)

const seedJSON = `[
  {"id": "c1", "name": "Northside", "timezone": "Africa/Lagos",
   "weekly_hours": [{"closed":true},{"open":"09:00","close":"17:00"},{"open":"09:00","close":"17:00"},
     {"open":"09:00","close":"17:00"},{"open":"09:00","close":"17:00"},{"open":"09:00","close":"13:00"},{"closed":true}]}
]`

func TestLoadClinics(t *testing.T) {
	clinics, err := loadClinics(strings.NewReader(seedJSON))
	require.NoError(t, err)
	require.Len(t, clinics, 1)
	assert.Equal(t, "Northside", clinics[0].Name)
	assert.True(t, clinics[0].Hours[0].Closed)
	assert.Equal(t, entities.MinuteOfDay(13*60), clinics[0].Hours[5].Close)
}

func TestLoadClinics_Rejects(t *testing.T) {
	tests := map[string]string{
		"malformed json": `[{"id":`,
		"missing name":   `[{"id":"c1","timezone":"UTC"}]`,
		"bad timezone":   `[{"id":"c1","name":"A","timezone":"Mars/Olympus"}]`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loadClinics(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}

func TestLoadClinics_DuplicateIDs(t *testing.T) {
	closedWeek := `[` + strings.Repeat(`{"closed":true},`, 6) + `{"closed":true}]`
	input := `[{"id":"c1","name":"A","weekly_hours":` + closedWeek + `},{"id":"c1","name":"B","weekly_hours":` + closedWeek + `}]`

	_, err := loadClinics(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "appears twice")
}

func TestPrintDay(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printDay(&buf, &entities.DayAvailability{Date: "2026-03-01"}))
	assert.Equal(t, "2026-03-01: closed\n", buf.String())

	buf.Reset()
	require.NoError(t, printDay(&buf, &entities.DayAvailability{
		Date:           "2026-03-02",
		IsOpen:         true,
		TotalSlots:     2,
		AvailableSlots: 1,
		BookedSlots:    1,
		TimeSlots: []entities.TimeSlot{
			{Time: "09:00", DurationMinutes: 30, Status: entities.SlotStatusBooked, AppointmentID: "appt-1"},
			{Time: "09:30", DurationMinutes: 30, Status: entities.SlotStatusAvailable},
		},
	}))
	out := buf.String()
	assert.Contains(t, out, "2 slots, 1 available, 1 booked, 0 blocked")
	assert.Contains(t, out, "appt-1")
	assert.Equal(t, 4, strings.Count(out, "\n"))
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"migrate", "seed", "slots", "notifications"}, names)
}
