package store

import (
	"context"
	"errors"
	"time"

	"alumnichat/server/internal/apperror"
	"alumnichat/server/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore persists chats as documents with embedded message logs.
// Appends and read receipts are single atomic updates; leave, delete and
// edit replace the document guarded by its version.
type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection("chats"), now: func() time.Time { return time.Now().UTC() }}
}

// EnsureIndexes creates the indexes the queries below rely on. The partial
// unique index on pairKey keeps at most one direct chat per pair.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "isActive", Value: 1}},
			Options: options.Index().SetName("participants_idx"),
		},
		{
			Keys:    bson.D{{Key: "lastMessage.timestamp", Value: -1}},
			Options: options.Index().SetName("last_message_idx"),
		},
		{
			Keys: bson.D{{Key: "pairKey", Value: 1}},
			Options: options.Index().
				SetName("pair_key_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"pairKey": bson.M{"$exists": true}}),
		},
	}
	_, err := s.coll.Indexes().CreateMany(ctx, indexes)
	return err
}

func (s *MongoStore) FindOrCreateDirect(ctx context.Context, userA, userB string) (*models.Chat, bool, error) {
	fresh, err := models.NewDirectChat(userA, userB, s.now())
	if err != nil {
		return nil, false, err
	}

	existing, err := s.findByPair(ctx, fresh.PairKey)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		_, err := s.coll.InsertOne(ctx, fresh)
		if err == nil {
			return fresh, true, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, false, apperror.Internal("Failed to create chat", err)
		}
		// Lost the race to a concurrent creator; use their chat.
		existing, err = s.findByPair(ctx, fresh.PairKey)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, errConcurrentUpdate()
		}
	}
	if existing.IsActive {
		return existing, false, nil
	}

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": existing.ID, "isActive": false},
		bson.M{
			"$set": bson.M{"isActive": true, "updatedAt": fresh.CreatedAt},
			"$inc": bson.M{"version": 1},
		})
	if err != nil {
		return nil, false, apperror.Internal("Failed to reopen chat", err)
	}
	chat, err := s.GetChat(ctx, existing.ID)
	if err != nil {
		return nil, false, err
	}
	return chat, res.ModifiedCount > 0, nil
}

func (s *MongoStore) findByPair(ctx context.Context, pairKey string) (*models.Chat, error) {
	var chat models.Chat
	err := s.coll.FindOne(ctx, bson.M{"pairKey": pairKey}).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Internal("Failed to load chat", err)
	}
	return &chat, nil
}

func (s *MongoStore) CreateGroup(ctx context.Context, chat *models.Chat) error {
	if _, err := s.coll.InsertOne(ctx, chat); err != nil {
		return apperror.Internal("Failed to create group chat", err)
	}
	return nil
}

func (s *MongoStore) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	var chat models.Chat
	err := s.coll.FindOne(ctx, bson.M{"_id": chatID}).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errChatNotFound()
	}
	if err != nil {
		return nil, apperror.Internal("Failed to load chat", err)
	}
	return &chat, nil
}

func activeFor(userID string) bson.M {
	return bson.M{"participants": userID, "isActive": true}
}

func (s *MongoStore) ListChats(ctx context.Context, userID string, page, limit int) ([]*models.Chat, int64, error) {
	page, limit = Pagination(page, limit, 20)
	filter := activeFor(userID)

	opts := options.Find().
		SetSort(bson.D{{Key: "lastMessage.timestamp", Value: -1}, {Key: "updatedAt", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"messages.content": 0, "messages.fileUrl": 0, "messages.fileName": 0})

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, apperror.Internal("Failed to list chats", err)
	}
	defer cur.Close(ctx)

	chats := []*models.Chat{}
	for cur.Next(ctx) {
		var c models.Chat
		if err := cur.Decode(&c); err != nil {
			return nil, 0, apperror.Internal("Failed to decode chat", err)
		}
		chats = append(chats, &c)
	}
	if err := cur.Err(); err != nil {
		return nil, 0, apperror.Internal("Failed to list chats", err)
	}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, apperror.Internal("Failed to count chats", err)
	}
	return chats, total, nil
}

func (s *MongoStore) ActiveChatIDs(ctx context.Context, userID string) ([]string, error) {
	cur, err := s.coll.Find(ctx, activeFor(userID), options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, apperror.Internal("Failed to list chats", err)
	}
	defer cur.Close(ctx)

	ids := []string{}
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, apperror.Internal("Failed to decode chat", err)
		}
		ids = append(ids, doc.ID)
	}
	return ids, cur.Err()
}

func (s *MongoStore) AppendMessage(ctx context.Context, chatID, sender, content string, t models.MessageType, file models.FileMeta) (models.Message, *models.LastMessage, error) {
	msg, err := models.NewMessage(sender, content, t, file, s.now())
	if err != nil {
		return models.Message{}, nil, err
	}
	last := models.LastMessageFor(msg)

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": chatID, "isActive": true, "participants": sender},
		bson.M{
			"$push": bson.M{"messages": msg},
			"$set":  bson.M{"lastMessage": last, "updatedAt": msg.CreatedAt},
			"$inc":  bson.M{"version": 1},
		})
	if err != nil {
		return models.Message{}, nil, apperror.Internal("Failed to save message", err)
	}
	if res.MatchedCount == 0 {
		chat, err := s.GetChat(ctx, chatID)
		if err != nil {
			return models.Message{}, nil, err
		}
		if err := chat.CheckWritable(sender); err != nil {
			return models.Message{}, nil, err
		}
		return models.Message{}, nil, errConcurrentUpdate()
	}
	return msg, last, nil
}

func (s *MongoStore) MarkRead(ctx context.Context, chatID, reader string, messageIDs []string) (bool, error) {
	pending := bson.M{
		"sender":      bson.M{"$ne": reader},
		"readBy.user": bson.M{"$ne": reader},
	}
	elem := bson.M{
		"m.sender":      bson.M{"$ne": reader},
		"m.readBy.user": bson.M{"$ne": reader},
	}
	if len(messageIDs) > 0 {
		pending["_id"] = bson.M{"$in": messageIDs}
		elem["m._id"] = bson.M{"$in": messageIDs}
	}

	filter := activeFor(reader)
	filter["_id"] = chatID
	filter["messages"] = bson.M{"$elemMatch": pending}

	res, err := s.coll.UpdateOne(ctx, filter,
		bson.M{
			"$push": bson.M{"messages.$[m].readBy": models.ReadReceipt{User: reader, ReadAt: s.now()}},
			"$inc":  bson.M{"version": 1},
		},
		options.Update().SetArrayFilters(options.ArrayFilters{Filters: []interface{}{elem}}))
	if err != nil {
		return false, apperror.Internal("Failed to mark messages as read", err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}

	// Nothing matched: either access is denied or everything is already read.
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return false, err
	}
	return false, readAccess(chat, reader)
}

// mutate reloads the chat, applies fn and replaces the document only if its
// version is unchanged, retrying a bounded number of times.
func (s *MongoStore) mutate(ctx context.Context, chatID string, fn func(*models.Chat) error) (*models.Chat, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		chat, err := s.GetChat(ctx, chatID)
		if err != nil {
			return nil, err
		}
		prev := chat.Version
		if err := fn(chat); err != nil {
			return nil, err
		}
		chat.Version = prev + 1

		res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": chatID, "version": prev}, chat)
		if err != nil {
			return nil, apperror.Internal("Failed to update chat", err)
		}
		if res.MatchedCount == 1 {
			return chat, nil
		}
	}
	return nil, errConcurrentUpdate()
}

func (s *MongoStore) DeactivateOrLeave(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	return s.mutate(ctx, chatID, func(c *models.Chat) error {
		if !c.IsActive {
			return errChatNotFound()
		}
		return c.Leave(userID, s.now())
	})
}

func (s *MongoStore) DeleteMessage(ctx context.Context, chatID, messageID, userID string) (models.Message, *models.LastMessage, error) {
	var msg models.Message
	chat, err := s.mutate(ctx, chatID, func(c *models.Chat) error {
		m, err := c.DeleteMessage(messageID, userID, s.now())
		if err != nil {
			return err
		}
		msg = *m
		return nil
	})
	if err != nil {
		return models.Message{}, nil, err
	}
	return msg, chat.LastMessage, nil
}

func (s *MongoStore) EditMessage(ctx context.Context, chatID, messageID, userID, content string) (models.Message, *models.LastMessage, error) {
	var msg models.Message
	chat, err := s.mutate(ctx, chatID, func(c *models.Chat) error {
		m, err := c.EditMessage(messageID, userID, content, s.now())
		if err != nil {
			return err
		}
		msg = *m
		return nil
	})
	if err != nil {
		return models.Message{}, nil, err
	}
	return msg, chat.LastMessage, nil
}

func (s *MongoStore) Stats(ctx context.Context, userID string) (models.ChatStats, error) {
	var stats models.ChatStats
	cur, err := s.coll.Find(ctx, activeFor(userID),
		options.Find().SetProjection(bson.M{"messages.sender": 1, "messages.readBy.user": 1}))
	if err != nil {
		return stats, apperror.Internal("Failed to load chat stats", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var c models.Chat
		if err := cur.Decode(&c); err != nil {
			return stats, apperror.Internal("Failed to decode chat", err)
		}
		stats.TotalChats++
		stats.TotalMessages += int64(len(c.Messages))
		if c.UnreadCount(userID) > 0 {
			stats.UnreadChats++
		}
	}
	return stats, cur.Err()
}
