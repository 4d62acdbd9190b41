package serializer

const appIml = `<?xml version="1.0" encoding="UTF-8"?>
<module type="JAVA_MODULE" version="4">
  <component name="FacetManager">
    <facet type="web" name="Web">
      <configuration>
        <descriptors>
          <deploymentDescriptor name="web.xml" url="file://$MODULE_DIR$/web/WEB-INF/web.xml" />
        </descriptors>
      </configuration>
    </facet>
  </component>
  <component name="NewModuleRootManager" inherit-compiler-output="true">
    <exclude-output />
    <content url="file://$MODULE_DIR$">
      <sourceFolder url="file://$MODULE_DIR$/src" isTestSource="false" />
      <sourceFolder url="file://$MODULE_DIR$/test" isTestSource="true" />
      <sourceFolder url="file://$MODULE_DIR$/resources" type="java-resource" />
      <excludeFolder url="file://$MODULE_DIR$/out" />
    </content>
    <orderEntry type="inheritedJdk" />
    <orderEntry type="sourceFolder" forTests="false" />
    <orderEntry type="library" name="gson" level="project" />
    <orderEntry type="library" scope="TEST" name="junit" level="project" />
    <orderEntry type="module" module-name="core" exported="" />
    <orderEntry type="module-library">
      <library name="local">
        <CLASSES>
          <root url="jar://$MODULE_DIR$/lib/local.jar!/" />
        </CLASSES>
        <JAVADOC />
        <SOURCES />
      </library>
    </orderEntry>
  </component>
</module>
`

const coreIml = `<?xml version="1.0" encoding="UTF-8"?>
<module type="JAVA_MODULE" version="4">
  <component name="NewModuleRootManager">
    <content url="file://$MODULE_DIR$">
      <sourceFolder url="file://$MODULE_DIR$/src" isTestSource="false" packagePrefix="com.example.core" />
    </content>
    <orderEntry type="inheritedJdk" />
    <orderEntry type="sourceFolder" forTests="false" />
  </component>
</module>
`

const modulesXML = `<?xml version="1.0" encoding="UTF-8"?>
<project version="4">
  <component name="ProjectModuleManager">
    <modules>
      <module fileurl="file://$PROJECT_DIR$/app/app.iml" filepath="$PROJECT_DIR$/app/app.iml" />
      <module fileurl="file://$PROJECT_DIR$/core/core.iml" filepath="$PROJECT_DIR$/core/core.iml" />
    </modules>
  </component>
</project>
`

const gsonXML = `<?xml version="1.0" encoding="UTF-8"?>
<component name="libraryTable">
  <library name="gson" type="repository">
    <CLASSES>
      <root url="jar://$MAVEN_REPOSITORY$/gson.jar!/" />
    </CLASSES>
    <JAVADOC />
    <SOURCES>
      <root url="jar://$MAVEN_REPOSITORY$/gson-sources.jar!/" />
    </SOURCES>
  </library>
</component>
`

const junitXML = `<?xml version="1.0" encoding="UTF-8"?>
<component name="libraryTable">
  <library name="junit">
    <CLASSES>
      <root url="jar://$MAVEN_REPOSITORY$/junit.jar!/" />
    </CLASSES>
    <JAVADOC />
    <SOURCES />
  </library>
</component>
`

const appJarXML = `<?xml version="1.0" encoding="UTF-8"?>
<component name="ArtifactManager">
  <artifact type="jar" build-on-make="true" name="app:jar">
    <output-path>$PROJECT_DIR$/out/artifacts/app_jar</output-path>
    <root id="archive" name="app.jar">
      <element id="module-output" name="app" />
      <element id="directory" name="lib">
        <element id="library" level="project" name="gson" />
        <element id="library" level="module" name="local" module-name="app" />
      </element>
      <element id="file-copy" path="$PROJECT_DIR$/README.md" />
      <element id="javaee-facet-resources" facet="app/web/Web" />
    </root>
  </artifact>
</component>
`

const jdkTableXML = `<?xml version="1.0" encoding="UTF-8"?>
<application>
  <component name="ProjectJdkTable">
    <jdk version="2">
      <name value="17" />
      <type value="JavaSDK" />
      <version value="17.0.9" />
      <homePath value="/usr/lib/jvm/java-17" />
      <roots>
        <root url="jrt:///usr/lib/jvm/java-17!/java.base" type="CLASSES" />
      </roots>
    </jdk>
  </component>
</application>
`
