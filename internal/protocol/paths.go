package protocol

// API paths served over the HTTP request channel.
const (
	PathPing = "/ping"

	PathUserLogin      = "/service/user/username_login"
	PathUserRegister   = "/service/user/username_register"
	PathPhoneLogin     = "/service/user/phone_login"
	PathPhoneRegister  = "/service/user/phone_register"
	PathGetVerifyCode  = "/service/user/get_phone_verify_code"
	PathGetUserInfo    = "/service/user/get_user_info"
	PathSetNickname    = "/service/user/set_nickname"
	PathSetDescription = "/service/user/set_description"
	PathSetPhone       = "/service/user/set_phone"
	PathSetAvatar      = "/service/user/set_avatar"

	PathGetFriendList       = "/service/friend/get_friend_list"
	PathGetChatSessionList  = "/service/friend/get_chat_session_list"
	PathGetPendingEvents    = "/service/friend/get_pending_friend_events"
	PathRemoveFriend        = "/service/friend/remove_friend"
	PathAddFriendApply      = "/service/friend/add_friend_apply"
	PathAddFriendProcess    = "/service/friend/add_friend_process"
	PathCreateChatSession   = "/service/friend/create_chat_session"
	PathGetSessionMembers   = "/service/friend/get_chat_session_member"
	PathSearchFriend        = "/service/friend/search_friend"

	PathGetRecentMessages = "/service/message_storage/get_recent"
	PathSearchHistory     = "/service/message_storage/search_history"
	PathGetHistory        = "/service/message_storage/get_history"
	PathNewMessage        = "/service/message_transmit/new_message"

	PathGetSingleFile = "/service/file/get_single_file"
	PathSpeechToText  = "/service/speech/recognition"
)
