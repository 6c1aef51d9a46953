package outbox

import "github.com/TuNa-eTech/ErgoLifeApp/internal/events"

const activityLoggedSchema = `{
  "type": "object",
  "title": "ActivityLogged",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "house_id": {"type": "string"},
    "task_name": {"type": "string", "maxLength": 50},
    "duration_seconds": {"type": "integer", "minimum": 60, "maximum": 7200},
    "intensity": {"type": "number", "minimum": 1, "maximum": 10},
    "points_earned": {"type": "integer", "minimum": 0},
    "bonus_multiplier": {"type": "number"},
    "completed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "house_id", "task_name", "duration_seconds", "intensity", "points_earned", "bonus_multiplier", "completed_at"],
  "additionalProperties": false
}`

const streakAdvancedSchema = `{
  "type": "object",
  "title": "StreakAdvanced",
  "properties": {
    "user_id": {"type": "string"},
    "house_id": {"type": "string"},
    "previous_streak": {"type": "integer", "minimum": 0},
    "current_streak": {"type": "integer", "minimum": 0},
    "longest_streak": {"type": "integer", "minimum": 0},
    "streak_freeze_count": {"type": "integer", "minimum": 0, "maximum": 2},
    "message": {"type": "string"},
    "activity_date": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "house_id", "previous_streak", "current_streak", "longest_streak", "streak_freeze_count", "message", "activity_date"],
  "additionalProperties": false
}`

const streakFreezePurchasedSchema = `{
  "type": "object",
  "title": "StreakFreezePurchased",
  "properties": {
    "user_id": {"type": "string"},
    "house_id": {"type": "string"},
    "cost": {"type": "integer"},
    "wallet_balance": {"type": "integer", "minimum": 0},
    "streak_freeze_count": {"type": "integer", "minimum": 0, "maximum": 2},
    "purchased_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "cost", "wallet_balance", "streak_freeze_count", "purchased_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeActivityLogged:        {Schema: activityLoggedSchema},
	events.TypeStreakAdvanced:        {Schema: streakAdvancedSchema},
	events.TypeStreakFreezePurchased: {Schema: streakFreezePurchasedSchema},
}
