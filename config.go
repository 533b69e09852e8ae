package main

import (
	"fmt"
	"io/ioutil"
	"strings"

	"gopkg.in/yaml.v2"
)

type regRange struct {
	Start, Finish int
	Delay         int
}

type remoteDevice struct {
	ID     byte
	Ranges []regRange
}

type rtuData struct {
	Devicename string
	Baudrate   int
	Parity     string
	Devices    []remoteDevice
}

type seedRegister struct {
	Register int
	Value    uint16
	Name     string
}

type simData struct {
	TCPAddress string `yaml:"tcp_address"`
	Devicename string
	Baudrate   int
	Parity     string
	Holding    []seedRegister
	Input      []seedRegister
}

type mqttData struct {
	Host        string
	Port        uint
	QoS         byte
	TopicPrefix string `yaml:"topic_prefix"`
}

type recordField struct {
	Name  string
	Idx   int
	Units string
	uid   string
	topic string
}

type configData struct {
	Name      string
	Sniffer   rtuData
	Simulator simData
	MQTT      mqttData
	Source    struct {
		DeviceID byte `yaml:"device_id"`
		Fields   []recordField
	}
	Clients []rtuData
}

var appConfig configData

func parseConfiguration(cfgFn string) (err error) {
	appConfig.MQTT.QoS = 0

	cfgData, err := ioutil.ReadFile(cfgFn)
	if err != nil {
		return
	}

	err = yaml.Unmarshal(cfgData, &appConfig)
	if err != nil {
		fmt.Println(err)
		return
	}

	var newFields []recordField
	for _, fld := range appConfig.Source.Fields {
		fld.uid = strings.ReplaceAll(strings.ToLower(fld.Name), " ", "_")
		fld.topic = fmt.Sprintf("%s/%s/%s/state", appConfig.MQTT.TopicPrefix, appConfig.Name, fld.uid)
		newFields = append(newFields, fld)
	}
	appConfig.Source.Fields = newFields
	return
}

func frameTopic() string {
	return fmt.Sprintf("%s/%s/frames", appConfig.MQTT.TopicPrefix, appConfig.Name)
}

func statsTopic() string {
	return fmt.Sprintf("%s/%s/stats", appConfig.MQTT.TopicPrefix, appConfig.Name)
}
