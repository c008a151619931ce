package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"reflect"
	"strings"

	"github.com/robotalks/fable.go/pkg/bridge/comm/mqtt"
	"github.com/robotalks/fable.go/pkg/bridge/msgs"
)

var (
	mqttURL = "mqtt://localhost:1883/fable/"
)

func init() {
	if val := os.Getenv("FABLE_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	defer q.Close()

	q.Sub("#", mqtt.Handler(func(topic string, payload []byte) {
		if strings.HasSuffix(topic, mqtt.TopicMeta) {
			if info, ok := mqtt.ParseMeta(topic, payload); ok {
				log.Printf("%s: online %q", info.HostID, info.Meta.Description)
			} else {
				log.Printf("%s: offline", strings.TrimSuffix(topic, mqtt.TopicMeta))
			}
			return
		}
		typed, err := msgs.DecodeTyped(payload)
		if err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		msg, err := typed.Decode()
		if err != nil {
			log.Printf("%s: decode error: (type_id=%x) %v", topic, typed.TypeId, err)
			return
		}
		log.Printf("%s: #%d [%s] %s", topic, typed.Sequence,
			reflect.Indirect(reflect.ValueOf(msg)).Type().Name(),
			msg.(msgs.SerializableMessage).Serializable().String())
	}))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	<-sigCh
}
