package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/zathras777/modbusdev"
)

var (
	val        modbusdev.Value
	mqttClient mqtt.Client
)

// publishFields reads the configured fields from the register store and
// publishes their current values.
func publishFields() (err error) {
	if mqttClient == nil || !mqttClient.IsConnected() {
		return nil
	}
	regA, mErr := getRegisterAccess(appConfig.Source.DeviceID, 4)
	if mErr != modbusSuccess {
		log.Printf("Error getting registerAccess: %s", mErr)
		return
	}

	for _, fld := range appConfig.Source.Fields {
		data, mErr := regA.Read(fld.Idx, 2)
		if mErr != modbusSuccess {
			log.Printf("Unable to access index %d: %s", fld.Idx, mErr)
			continue
		}
		val.FormatBytes("ieee32", data[1:])
		token := mqttClient.Publish(fld.topic, appConfig.MQTT.QoS, true, fmt.Sprintf("%.02f", val.Ieee32))
		token.Wait()
	}
	return nil
}

type framePayload struct {
	Device    byte     `json:"device"`
	Function  byte     `json:"function"`
	Name      string   `json:"name"`
	Role      string   `json:"role"`
	Start     uint16   `json:"start,omitempty"`
	Quantity  uint16   `json:"quantity,omitempty"`
	Value     uint16   `json:"value,omitempty"`
	Registers []uint16 `json:"registers,omitempty"`
	Exception string   `json:"exception,omitempty"`
	Raw       string   `json:"raw"`
}

func publishFrame(sf sniffedFrame) {
	if mqttClient == nil || !mqttClient.IsConnected() {
		return
	}
	pl := framePayload{
		Device:    sf.decoded.address,
		Function:  sf.decoded.function & 0x7f,
		Name:      functionName(sf.decoded.function),
		Role:      "request",
		Start:     sf.decoded.start,
		Quantity:  sf.decoded.quantity,
		Value:     sf.decoded.value,
		Registers: sf.decoded.registers,
		Raw:       hex.EncodeToString(sf.raw),
	}
	if sf.decoded.role == roleResponse {
		pl.Role = "response"
	}
	if sf.decoded.exception {
		pl.Exception = exceptionName(sf.decoded.excCode)
	}
	jsonBytes, err := json.Marshal(pl)
	if err != nil {
		log.Printf("Unable to encode frame json: %s", err)
		return
	}
	mqttClient.Publish(frameTopic(), appConfig.MQTT.QoS, false, jsonBytes)
}

func publishStats(stats *frameStats) {
	if mqttClient == nil || !mqttClient.IsConnected() {
		return
	}
	jsonBytes, err := json.Marshal(stats.snapshot())
	if err != nil {
		log.Printf("Unable to encode stats json: %s", err)
		return
	}
	mqttClient.Publish(statsTopic(), appConfig.MQTT.QoS, true, jsonBytes)
}

func recordFrames() {
	for sf := range sniffedChan {
		publishFrame(sf)
	}
}

func startRecording() {
	mqOpts := mqtt.NewClientOptions()
	mqOpts.AddBroker(fmt.Sprintf("tcp://%s:%d", appConfig.MQTT.Host, appConfig.MQTT.Port))

	mqttClient = mqtt.NewClient(mqOpts)
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		log.Printf("Unable to connect to the MQTT server: %v", token.Error())
		mqttClient = nil
		return
	}

	go recordFrames()
	statsTicker := time.NewTicker(30 * time.Second)
	for {
		if err := publishFields(); err != nil {
			break
		}
		select {
		case <-statsTicker.C:
			publishStats(&liveStats)
		default:
		}
		time.Sleep(time.Second)
	}
}
