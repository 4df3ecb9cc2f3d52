// Package mqtt connects rxcore to an MQTT broker so that other services can
// follow authentication activity without polling the API.
//
// The client publishes:
//   - auth events as JSON on {prefix}/events/auth/{type} (QoS from config, not retained)
//   - the service status on {prefix}/system/status (retained), with a Last
//     Will so subscribers see "offline" when the process dies
//
// Publishing is the only direction; rxcore does not consume broker messages.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().AuthEvent("login_succeeded")
//	err = client.Publish(topic, payload, 1, false)
package mqtt
