package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestUpdateDocument(t *testing.T) {
	require.Empty(t, updateDocument(nil))
	require.Empty(t, updateDocument(map[string]interface{}{}))

	require.Equal(t, bson.M{"$set": bson.M{"name": "x", "collaborators.bob": bson.M{"role": "editor"}}},
		updateDocument(map[string]interface{}{"name": "x", "collaborators.bob": bson.M{"role": "editor"}}))

	require.Equal(t, bson.M{"$unset": bson.M{"sources.abc": ""}},
		updateDocument(map[string]interface{}{"sources.abc": DeleteField}))

	require.Equal(t, bson.M{
		"$set":   bson.M{"updatedAtUtc": "2024-01-01T00:00:00.000Z", "label": ""},
		"$unset": bson.M{"comments.c1": "", "ratings.r1": ""},
	}, updateDocument(map[string]interface{}{
		"updatedAtUtc": "2024-01-01T00:00:00.000Z",
		"label":        "",
		"comments.c1":  DeleteField,
		"ratings.r1":   DeleteField,
	}))
}

// sentUpdate is the first statement of an update command.
type sentUpdate struct {
	Updates []struct {
		Q bson.M `bson:"q"`
		U struct {
			Set   bson.M `bson:"$set"`
			Unset bson.M `bson:"$unset"`
		} `bson:"u"`
	} `bson:"updates"`
}

func TestMongoBackend_Update(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("splits set and unset", func(mt *mtest.T) {
		b := NewMongoBackend(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		err := b.Update(context.Background(), mt.Coll.Name(), "w1", map[string]interface{}{
			"name":        "Renamed",
			"sources.abc": DeleteField,
		})
		require.NoError(mt, err)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		require.Equal(mt, "update", started.CommandName)
		var cmd sentUpdate
		require.NoError(mt, bson.Unmarshal(started.Command, &cmd))
		require.Len(mt, cmd.Updates, 1)
		require.Equal(mt, "w1", cmd.Updates[0].Q["_id"])
		require.Equal(mt, bson.M{"name": "Renamed"}, cmd.Updates[0].U.Set)
		require.Equal(mt, bson.M{"sources.abc": ""}, cmd.Updates[0].U.Unset)
	})

	mt.Run("no match is not found", func(mt *mtest.T) {
		b := NewMongoBackend(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		err := b.Update(context.Background(), mt.Coll.Name(), "gone", map[string]interface{}{"name": "x"})
		require.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("empty fields send nothing", func(mt *mtest.T) {
		b := NewMongoBackend(mt.DB)
		require.NoError(mt, b.Update(context.Background(), mt.Coll.Name(), "w1", nil))
		require.Nil(mt, mt.GetStartedEvent())
	})

	mt.Run("server error is wrapped", func(mt *mtest.T) {
		b := NewMongoBackend(mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Name: "BadValue", Message: "bad update"}))

		err := b.Update(context.Background(), mt.Coll.Name(), "w1", map[string]interface{}{"name": "x"})
		require.Error(mt, err)
		require.NotErrorIs(mt, err, ErrNotFound)
		require.Contains(mt, err.Error(), "update "+mt.Coll.Name()+"/w1")
	})
}

func TestMongoBackend_WatchReplaysSnapshotThenStream(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("watch", func(mt *mtest.T) {
		b := NewMongoBackend(mt.DB)
		ns := mt.DB.Name() + "." + mt.Coll.Name()
		keep := func(id string) bson.D {
			return bson.D{{Key: "_id", Value: id}, {Key: "uid", Value: id}, {Key: "name", Value: "keep"}}
		}
		token := func(n string) bson.D { return bson.D{{Key: "_data", Value: n}} }

		mt.AddMockResponses(
			// change stream opened first; its first batch carries two writes
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
				bson.D{
					{Key: "_id", Value: token("1")},
					{Key: "operationType", Value: "insert"},
					{Key: "documentKey", Value: bson.D{{Key: "_id", Value: "b"}}},
					{Key: "fullDocument", Value: keep("b")},
				},
				bson.D{
					{Key: "_id", Value: token("2")},
					{Key: "operationType", Value: "update"},
					{Key: "documentKey", Value: bson.D{{Key: "_id", Value: "a"}}},
					{Key: "fullDocument", Value: bson.D{{Key: "_id", Value: "a"}, {Key: "uid", Value: "a"}, {Key: "name", Value: "drop"}}},
				},
			),
			// snapshot
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, keep("a")),
		)

		changes := make(chan Change, 8)
		cancel, err := b.Watch(context.Background(), mt.Coll.Name(), Query{
			Where: []Predicate{Where("name", OpEq, "keep")},
		}, func(c Change) { changes <- c })
		require.NoError(mt, err)

		var got []Change
		for len(got) < 3 {
			select {
			case c := <-changes:
				got = append(got, c)
			case <-time.After(5 * time.Second):
				mt.Fatalf("got %d changes", len(got))
			}
		}
		cancel()
		cancel()

		require.Equal(mt, Added, got[0].Type)
		require.Equal(mt, "a", got[0].ID)
		require.Equal(mt, Added, got[1].Type)
		require.Equal(mt, "b", got[1].ID)
		require.Equal(mt, Removed, got[2].Type)
		require.Equal(mt, "a", got[2].ID)
		// removals carry the last matching document
		name, _ := got[2].Doc.Lookup("name").StringValueOK()
		require.Equal(mt, "keep", name)

		require.Eventually(mt, func() bool {
			return mt.Client.NumberSessionsInProgress() == 0
		}, 5*time.Second, 10*time.Millisecond)
	})
}
