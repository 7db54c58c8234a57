package mongostore

import (
	"time"

	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func field(name string) string {
	if name == docstore.IDField {
		return "_id"
	}
	return name
}

// filter translates AND conditions to a query document. Eq(field, nil)
// matches both missing and null fields, as it does in MongoDB.
func filter(conds []docstore.Condition) bson.M {
	f := bson.M{}
	var and []bson.M
	for _, c := range conds {
		var clause any
		switch c.Op {
		case docstore.OpIn:
			clause = bson.M{"$in": c.Value}
		default:
			clause = c.Value
		}
		key := field(c.Field)
		if _, dup := f[key]; dup {
			and = append(and, bson.M{key: clause})
			continue
		}
		f[key] = clause
	}
	if len(and) > 0 {
		f["$and"] = and
	}
	return f
}

// toBSON converts a cleaned document for a full write, resolving ServerTime.
func toBSON(d docstore.Doc, now time.Time) bson.M {
	out := bson.M{}
	for k, v := range docstore.ResolveServerTime(d, now).(docstore.Doc) {
		if k == docstore.IDField {
			continue
		}
		out[k] = v
	}
	return out
}

// update builds a $set update. Top-level ServerTime fields use $currentDate
// so the server clock wins; nested ones are resolved locally.
func update(d docstore.Doc) bson.M {
	set := bson.M{}
	current := bson.M{}
	now := time.Now().UTC()
	for k, v := range d {
		if k == docstore.IDField {
			continue
		}
		if v == docstore.ServerTime {
			current[k] = true
			continue
		}
		set[k] = docstore.ResolveServerTime(v, now)
	}
	u := bson.M{}
	if len(set) > 0 {
		u["$set"] = set
	}
	if len(current) > 0 {
		u["$currentDate"] = current
	}
	return u
}

// fromBSON exposes _id as "id" and normalizes BSON types.
func fromBSON(raw bson.M) docstore.Doc {
	d := docstore.NormalizeDoc(raw)
	if id, ok := d["_id"]; ok {
		switch v := id.(type) {
		case string:
			d[docstore.IDField] = v
		case primitive.ObjectID:
			d[docstore.IDField] = v.Hex()
		}
		delete(d, "_id")
	}
	return d
}
