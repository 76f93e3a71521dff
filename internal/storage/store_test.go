package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/attendance/internal/models"
)

func day(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

// exerciseStore runs the behaviour every Store backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	alice := &models.Identity{ExternalKey: "S001", Name: "Alice", Department: "CS"}
	bob := &models.Identity{ExternalKey: "S002", Name: "Bob"}
	require.NoError(t, s.CreateIdentity(ctx, alice))
	require.NoError(t, s.CreateIdentity(ctx, bob))
	require.NotZero(t, alice.ID)
	require.NotEqual(t, alice.ID, bob.ID)

	err := s.CreateIdentity(ctx, &models.Identity{ExternalKey: "S001", Name: "Impostor"})
	require.ErrorIs(t, err, ErrDuplicateKey)

	t.Run("identities", func(t *testing.T) {
		got, err := s.GetIdentityByKey(ctx, "S001")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, alice.ID, got.ID)
		assert.Equal(t, "CS", got.Department)

		got, err = s.GetIdentity(ctx, bob.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Bob", got.Name)

		missing, err := s.GetIdentityByKey(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
		missing, err = s.GetIdentity(ctx, 99999)
		require.NoError(t, err)
		assert.Nil(t, missing)

		all, err := s.ListIdentities(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
		n, err := s.CountIdentities(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("samples", func(t *testing.T) {
		smp := &models.Sample{ID: uuid.New(), IdentityID: alice.ID, ObjectKey: SampleKey(alice.ID, "a"), Width: 100, Height: 120}
		require.NoError(t, s.AddSample(ctx, smp))

		n, err := s.CountSamples(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = s.CountSamples(ctx, bob.ID)
		require.NoError(t, err)
		assert.Zero(t, n)

		all, err := s.ListSamples(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, smp.ObjectKey, all[0].ObjectKey)
		assert.Equal(t, alice.ID, all[0].IdentityID)
	})

	t.Run("attendance", func(t *testing.T) {
		monday := day("2024-05-06")
		at := time.Date(2024, 5, 6, 7, 5, 0, 0, time.UTC)
		rec := &models.AttendanceRecord{IdentityID: alice.ID, Date: monday, MarkedAt: at,
			Status: models.StatusPresent, Method: models.MethodFace, RecordedBy: "System"}
		audit := &models.AttendanceEvent{ID: uuid.New(), IdentityID: alice.ID, Description: "marked", Timestamp: at}

		created, err := s.CreateAttendance(ctx, rec, audit)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotZero(t, rec.ID)

		again := &models.AttendanceRecord{IdentityID: alice.ID, Date: monday, MarkedAt: at.Add(time.Hour),
			Status: models.StatusLate, Method: models.MethodManual, RecordedBy: "op"}
		created, err = s.CreateAttendance(ctx, again, nil)
		require.NoError(t, err)
		assert.False(t, created)

		got, err := s.GetAttendance(ctx, alice.ID, monday)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.StatusPresent, got.Status)
		assert.Equal(t, models.MethodFace, got.Method)
		assert.True(t, got.MarkedAt.Equal(at))
		assert.Equal(t, "2024-05-06", got.DateString())

		none, err := s.GetAttendance(ctx, bob.ID, monday)
		require.NoError(t, err)
		assert.Nil(t, none)

		tuesday := day("2024-05-07")
		_, err = s.CreateAttendance(ctx, &models.AttendanceRecord{IdentityID: alice.ID, Date: tuesday,
			MarkedAt: at.AddDate(0, 0, 1), Status: models.StatusLate, Method: models.MethodToken, RecordedBy: "Self"}, nil)
		require.NoError(t, err)
		_, err = s.CreateAttendance(ctx, &models.AttendanceRecord{IdentityID: bob.ID, Date: tuesday,
			MarkedAt: at.AddDate(0, 0, 1), Status: models.StatusPresent, Method: models.MethodManual, RecordedBy: "op"}, nil)
		require.NoError(t, err)

		hist, err := s.History(ctx, alice.ID, 10)
		require.NoError(t, err)
		require.Len(t, hist, 2)
		assert.Equal(t, "2024-05-07", hist[0].DateString())
		assert.Equal(t, "2024-05-06", hist[1].DateString())

		hist, err = s.History(ctx, alice.ID, 1)
		require.NoError(t, err)
		assert.Len(t, hist, 1)

		rows, err := s.Report(ctx, tuesday, tuesday)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		keys := []string{rows[0].ExternalKey, rows[1].ExternalKey}
		assert.ElementsMatch(t, []string{"S001", "S002"}, keys)

		rows, err = s.Report(ctx, monday, tuesday)
		require.NoError(t, err)
		assert.Len(t, rows, 3)

		n, err := s.CountMarked(ctx, monday)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = s.CountMarked(ctx, tuesday)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.CountDistinctMarked(ctx, monday.AddDate(0, 0, -7), tuesday)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("concurrent marks create once", func(t *testing.T) {
		friday := day("2024-05-10")
		at := time.Date(2024, 5, 10, 7, 0, 0, 0, time.UTC)
		const n = 16

		var wg sync.WaitGroup
		results := make(chan bool, n)
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rec := &models.AttendanceRecord{IdentityID: bob.ID, Date: friday,
					MarkedAt: at.Add(time.Duration(i) * time.Second),
					Status:   models.StatusPresent, Method: models.MethodFace, RecordedBy: "System"}
				audit := &models.AttendanceEvent{ID: uuid.New(), IdentityID: bob.ID, Description: "marked", Timestamp: rec.MarkedAt}
				created, err := s.CreateAttendance(ctx, rec, audit)
				if err != nil {
					errs <- err
					return
				}
				results <- created
			}(i)
		}
		wg.Wait()
		close(results)
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		created := 0
		for ok := range results {
			if ok {
				created++
			}
		}
		assert.Equal(t, 1, created)

		marked, err := s.CountMarked(ctx, friday)
		require.NoError(t, err)
		assert.Equal(t, 1, marked)
		hist, err := s.History(ctx, bob.ID, 100)
		require.NoError(t, err)
		fridays := 0
		for _, r := range hist {
			if r.DateString() == "2024-05-10" {
				fridays++
			}
		}
		assert.Equal(t, 1, fridays)
	})

	t.Run("audit failure keeps record", func(t *testing.T) {
		at := time.Date(2024, 5, 13, 7, 0, 0, 0, time.UTC)
		first := &models.AttendanceEvent{ID: uuid.New(), IdentityID: alice.ID, Description: "marked", Timestamp: at}
		created, err := s.CreateAttendance(ctx, &models.AttendanceRecord{IdentityID: alice.ID, Date: day("2024-05-13"),
			MarkedAt: at, Status: models.StatusPresent, Method: models.MethodFace, RecordedBy: "System"}, first)
		require.NoError(t, err)
		require.True(t, created)

		// Reusing the event id makes the audit insert violate its primary key.
		dup := &models.AttendanceEvent{ID: first.ID, IdentityID: bob.ID, Description: "marked", Timestamp: at}
		rec := &models.AttendanceRecord{IdentityID: bob.ID, Date: day("2024-05-13"),
			MarkedAt: at, Status: models.StatusPresent, Method: models.MethodToken, RecordedBy: "Self"}
		created, err = s.CreateAttendance(ctx, rec, dup)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotZero(t, rec.ID)

		got, err := s.GetAttendance(ctx, bob.ID, day("2024-05-13"))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.MethodToken, got.Method)
	})

	require.NoError(t, s.Ping(ctx))
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}

func TestOpenSQLiteMissingDir(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "missing", "store.db"))
	require.Error(t, err)
}

func TestCivilDate(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	late := time.Date(2024, 5, 6, 23, 30, 0, 0, loc)
	assert.Equal(t, day("2024-05-06"), CivilDate(late))
	assert.Equal(t, day("2024-05-06"), CivilDate(late.UTC()))

	early := time.Date(2024, 5, 7, 1, 0, 0, 0, loc)
	assert.Equal(t, day("2024-05-07"), CivilDate(early))
	assert.Equal(t, day("2024-05-06"), CivilDate(early.UTC()))
}
