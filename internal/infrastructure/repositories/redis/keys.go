package redis

import (
	"strings"

	"livestream/internal/core/domain"
)

const keyPrefix = "livestream:"

func streamKey(id domain.StreamID) string { return keyPrefix + "stream:" + string(id) }
func streamViewersKey(id domain.StreamID) string {
	return keyPrefix + "stream:" + string(id) + ":viewers"
}
func allStreamsKey() string  { return keyPrefix + "streams:all" }
func liveStreamsKey() string { return keyPrefix + "streams:live" }

func userKey(id domain.UserID) string { return keyPrefix + "user:" + string(id) }
func userSubscribersKey(id domain.UserID) string {
	return keyPrefix + "user:" + string(id) + ":subscribers"
}
func userSubscriptionsKey(id domain.UserID) string {
	return keyPrefix + "user:" + string(id) + ":subscriptions"
}
func userStreamsKey(id domain.UserID) string { return keyPrefix + "user:" + string(id) + ":streams" }
func usernameKey(username string) string {
	return keyPrefix + "username:" + strings.ToLower(username)
}
