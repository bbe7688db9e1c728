package stores

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hankgalt/records-ingest/internal/domain/records"
)

type Person struct {
	ObjectID   primitive.ObjectID `bson:"_id,omitempty"`
	ID         int64              `bson:"id"`
	FirstName  string             `bson:"firstname"`
	LastName   string             `bson:"lastname"`
	Email      string             `bson:"email"`
	Email2     string             `bson:"email2"`
	Profession string             `bson:"profession"`
	CreatedAt  time.Time          `bson:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt"`
}

// MapRecordToMongoModel builds the stored document for a validated record.
func MapRecordToMongoModel(rec records.Record, now time.Time) Person {
	return Person{
		ID:         rec.ID,
		FirstName:  rec.FirstName,
		LastName:   rec.LastName,
		Email:      rec.Email,
		Email2:     rec.Email2,
		Profession: rec.Profession,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MapMongoModelToRecord drops storage metadata.
func MapMongoModelToRecord(p Person) records.Record {
	return records.Record{
		ID:         p.ID,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Email:      p.Email,
		Email2:     p.Email2,
		Profession: p.Profession,
	}
}
