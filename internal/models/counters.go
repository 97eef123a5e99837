package models

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CountersColName = "counters"

const (
	SeqPayment         = "payment"
	SeqUpcomingPayment = "upcoming_payment"
	SeqService         = "service"
	SeqServiceNote     = "service_note"
	SeqActivity        = "activity"
)

var sequenceStart = map[string]int64{
	SeqPayment:         1001,
	SeqUpcomingPayment: 2001,
	SeqService:         3001,
	SeqServiceNote:     5001,
	SeqActivity:        1,
}

// SequenceStart is the first id handed out for a sequence.
func SequenceStart(name string) int64 {
	if start, ok := sequenceStart[name]; ok {
		return start
	}
	return 1
}

type counter struct {
	Name string `bson:"_id"`
	Seq  int64  `bson:"seq"`
}

// NextID atomically increments the named counter and returns the new id.
func (mdb *MongodbRepo) NextID(ctx context.Context, name string) (int64, error) {
	col, err := mdb.GetCollection(CountersColName)
	if err != nil {
		return 0, err
	}

	filter := bson.M{"_id": name}
	update := bson.M{"$inc": bson.M{"seq": int64(1)}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var c counter
	err = col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&c)
	if mongo.IsDuplicateKeyError(err) {
		// two first-time upserts raced; the document exists now
		err = col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&c)
	}
	if err != nil {
		return 0, storageErr("next id "+name, err)
	}
	return SequenceStart(name) + c.Seq - 1, nil
}
