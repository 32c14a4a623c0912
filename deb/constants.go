package deb

// ControlField represents a standard field in a Debian control file.
type ControlField string

const (
	FieldPackage          ControlField = "Package"
	FieldVersion          ControlField = "Version"
	FieldArchitecture     ControlField = "Architecture"
	FieldMaintainer       ControlField = "Maintainer"
	FieldDescription      ControlField = "Description"
	FieldSection          ControlField = "Section"
	FieldPriority         ControlField = "Priority"
	FieldHomepage         ControlField = "Homepage"
	FieldEssential        ControlField = "Essential"
	FieldDepends          ControlField = "Depends"
	FieldPreDepends       ControlField = "Pre-Depends"
	FieldRecommends       ControlField = "Recommends"
	FieldSuggests         ControlField = "Suggests"
	FieldEnhances         ControlField = "Enhances"
	FieldConflicts        ControlField = "Conflicts"
	FieldBreaks           ControlField = "Breaks"
	FieldReplaces         ControlField = "Replaces"
	FieldProvides         ControlField = "Provides"
	FieldBuiltUsing       ControlField = "Built-Using"
	FieldSource           ControlField = "Source"
	FieldInstalledSize    ControlField = "Installed-Size"
	FieldStandardsVersion ControlField = "Standards-Version"
	FieldVcsBrowser       ControlField = "Vcs-Browser"
	FieldBuildDepends     ControlField = "Build-Depends"
)

// ControlFile represents a standard file found in the control archive.
type ControlFile string

const (
	FileControl   ControlFile = "control"
	FileMd5sums   ControlFile = "md5sums"
	FileConffiles ControlFile = "conffiles"
	FilePreinst   ControlFile = "preinst"
	FilePostinst  ControlFile = "postinst"
	FilePrerm     ControlFile = "prerm"
	FilePostrm    ControlFile = "postrm"
	FileConfig    ControlFile = "config"
	FileTemplates ControlFile = "templates"
	FileTriggers  ControlFile = "triggers"
)

// MaintainerScripts lists the scripts dpkg runs around unpacking and removal,
// in the order debhelper processes them.
var MaintainerScripts = []ControlFile{FilePostinst, FilePreinst, FilePrerm, FilePostrm}

// PackageFile represents a standard member of the .deb archive (ar format).
type PackageFile string

const (
	PkgDebianBinary PackageFile = "debian-binary"
	PkgControlTar   PackageFile = "control.tar"
	PkgDataTar      PackageFile = "data.tar"
	PkgGPGOrigin    PackageFile = "_gpgorigin"
)

// DebianBinaryVersion is the content of the debian-binary member.
const DebianBinaryVersion = "2.0\n"

// StandardsVersion is the Debian policy version generated packages claim.
const StandardsVersion = "3.9.4"

// Install locations with special meaning to the package build.
const (
	SystemdUnitDir = "lib/systemd/system/"
	TmpfilesDir    = "usr/lib/tmpfiles.d/"
	DebugDir       = "usr/lib/debug/"
	DocDir         = "usr/share/doc/"
)
