package redis

const (
	// recordSessionScript applies a log entry to its usage record and appends
	// it to the log and its indexes. Entries already present are skipped.
	// Returns the record hash as a flat field/value list.
	recordSessionScript = `
local record_key = KEYS[1]     -- playtime:record:{label}
local records_set = KEYS[2]    -- playtime:records
local entry_key = KEYS[3]      -- playtime:entry:{id}
local log_all = KEYS[4]        -- playtime:log
local log_subject = KEYS[5]    -- playtime:log:subject:{subjectID}
local log_label = KEYS[6]      -- playtime:log:label:{label}

local label = ARGV[1]
local user_field = ARGV[2]
local minutes = ARGV[3]
local entry_id = ARGV[4]
local subject_id = ARGV[5]
local occurred_at = ARGV[6]
local score = ARGV[7]

redis.call('HSETNX', record_key, 'label', label)
redis.call('HSETNX', record_key, 'overall_minutes', '0')
redis.call('SADD', records_set, label)

if redis.call('EXISTS', entry_key) == 1 then
  return redis.call('HGETALL', record_key)
end

redis.call('HINCRBY', record_key, 'overall_minutes', minutes)
redis.call('HINCRBY', record_key, user_field, minutes)

redis.call('HSET', entry_key,
  'id', entry_id,
  'label', label,
  'subject_id', subject_id,
  'occurred_at', occurred_at,
  'minutes_added', minutes
)

redis.call('ZADD', log_all, score, entry_id)
redis.call('ZADD', log_subject, score, entry_id)
redis.call('ZADD', log_label, score, entry_id)

return redis.call('HGETALL', record_key)
`
)
