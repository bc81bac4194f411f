// The config file schema. Each leaf field is named after the flag it sets; nested messages only group fields, so
// `storage { snapshot_interval { seconds: 30 } }` sets --snapshot_interval=30s.

package config

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/durationpb"
)

const durationTypeName = ".google.protobuf.Duration"

// configDescriptor describes offline.Config, the root message of a config file.
var configDescriptor protoreflect.MessageDescriptor

func optionalField(name string, number int32, kind descriptorpb.FieldDescriptorProto_Type,
	typeName string) *descriptorpb.FieldDescriptorProto {
	field := &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		JsonName: proto.String(name),
		Number:   proto.Int32(number),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     kind.Enum(),
	}
	if typeName != "" {
		field.TypeName = proto.String(typeName)
	}
	return field
}

func scalarField(name string, number int32, kind descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return optionalField(name, number, kind, "")
}

func messageField(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	return optionalField(name, number, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, typeName)
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

// configFileProto is the offline/config.proto file; proto2 keeps presence on every scalar so that only the fields
// written in the config file override flags.
func configFileProto() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String("offline/config.proto"),
		Package:    proto.String("offline"),
		Syntax:     proto.String("proto2"),
		Dependency: []string{durationpb.File_google_protobuf_duration_proto.Path()},
		MessageType: []*descriptorpb.DescriptorProto{
			message("Config",
				messageField("logging", 1, ".offline.LoggingConfig"),
				messageField("storage", 2, ".offline.StorageConfig"),
				messageField("cache", 3, ".offline.CacheConfig"),
				messageField("server", 4, ".offline.ServerConfig"),
			),
			message("LoggingConfig",
				scalarField("log_level", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalarField("log_handler_type", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			),
			message("StorageConfig",
				scalarField("store_quota_bytes", 1, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalarField("snapshot_path", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				messageField("snapshot_interval", 3, durationTypeName),
				scalarField("enable_lookup_filter", 4, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
				scalarField("lookup_filter_capacity", 5, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
				scalarField("lookup_filter_fp_rate", 6, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
			),
			message("CacheConfig",
				scalarField("cache_warnings", 1, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
			),
			message("ServerConfig",
				scalarField("address", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			),
		},
	}
}

func init() {
	file, err := protodesc.NewFile(configFileProto(), protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("invalid config schema: %v", err))
	}
	configDescriptor = file.Messages().ByName("Config")
}
