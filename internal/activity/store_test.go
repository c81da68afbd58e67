package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/mind-engage/mindengage-jupyter/internal/db"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	dbh, err := db.Open(context.Background(), db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dbh.Close() })
	return map[string]Store{
		"memory": NewInMemoryStore(),
		"sqlite": NewSQLStore(dbh, "sqlite"),
	}
}

func TestStore_InstanceAssignmentLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		in, err := st.CreateInstance(ctx, Instance{CourseID: 2, ContextID: 40, Name: "Lab 1", Autograded: true})
		if err != nil {
			t.Fatalf("%s: create: %v", name, err)
		}
		got, err := st.GetInstance(ctx, in.ID)
		if err != nil {
			t.Fatalf("%s: get: %v", name, err)
		}
		if got.Assignment != nil || !got.Autograded || got.ContextID != 40 {
			t.Fatalf("%s: unexpected instance %+v", name, got)
		}

		fn := "lab1.ipynb"
		if err := st.SetAssignment(ctx, in.ID, 2, &fn); err != nil {
			t.Fatalf("%s: set assignment: %v", name, err)
		}
		if err := st.SetAssignment(ctx, in.ID, 99, &fn); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: wrong course must not match, got %v", name, err)
		}
		got, _ = st.GetInstance(ctx, in.ID)
		if got.Assignment == nil || *got.Assignment != fn {
			t.Fatalf("%s: assignment not persisted: %+v", name, got)
		}

		if _, err := st.GetInstance(ctx, 12345); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
}

func TestStore_PointsKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		in, _ := st.CreateInstance(ctx, Instance{CourseID: 1, ContextID: 1})
		if err := st.SetQuestions(ctx, in.ID, []Question{{QuestionNr: 1, MaxPoints: 5}, {QuestionNr: 2, MaxPoints: 2}, {QuestionNr: 3, MaxPoints: 1}}); err != nil {
			t.Fatalf("%s: questions: %v", name, err)
		}
		if err := st.UpsertPoints(ctx, in.ID, "alice", []Points{{QuestionNr: 3, Points: 1}, {QuestionNr: 1, Points: 2}}); err != nil {
			t.Fatalf("%s: upsert: %v", name, err)
		}
		// resubmission updates q1 in place and appends q2
		if err := st.UpsertPoints(ctx, in.ID, "alice", []Points{{QuestionNr: 1, Points: 4}, {QuestionNr: 2, Points: 0}}); err != nil {
			t.Fatalf("%s: upsert again: %v", name, err)
		}
		_ = st.UpsertPoints(ctx, in.ID, "bob", []Points{{QuestionNr: 1, Points: 5}})

		rows, err := st.ListPoints(ctx, in.ID, "alice")
		if err != nil {
			t.Fatalf("%s: list: %v", name, err)
		}
		wantNr := []int{3, 1, 2}
		wantPts := []float64{1, 4, 0}
		if len(rows) != len(wantNr) {
			t.Fatalf("%s: expected %d rows, got %d", name, len(wantNr), len(rows))
		}
		for i := range rows {
			if rows[i].QuestionNr != wantNr[i] || rows[i].Points != wantPts[i] {
				t.Fatalf("%s: row %d = %+v", name, i, rows[i])
			}
		}

		q, err := st.GetQuestion(ctx, in.ID, 2)
		if err != nil || q.MaxPoints != 2 {
			t.Fatalf("%s: get question: %+v %v", name, q, err)
		}
		if _, err := st.GetQuestion(ctx, in.ID, 9); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound for missing question, got %v", name, err)
		}
	}
}
