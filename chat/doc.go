// Package chat connects the bot to Twitch IRC.
//
// Every chat message from TWITCH_CHANNEL is handed to the consumer, which decides
// whether it gets an answer. Messages from the OPERATOR account that contain an
// operator command are turned into consumer controls instead:
//
//	!reload_prompt   re-read prompt_chat.txt
//	!toggle_verbose  toggle verbose conversation logging
//	!clear_conv      drop the conversation history
//	!update_info     refresh stream title/game from Helix and reload the prompt
//	!reload_all      update_info plus clear_conv
//	!enable_<bot>    redeem with an effectively unlimited cooldown
//	!disable_<bot>   leave the redeemed state, cooldown back to REDEEM_COOLDOWN
//
// Credentials: the IRC client requires a bot username and an OAuth token with
// chat:read/chat:edit scopes. When TWITCH_REFRESH_TOKEN is configured the token is
// rotated at runtime through SetToken.
package chat
